package importer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"product-catalog/internal/products"
	"product-catalog/internal/products/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cutoff = time.Date(2025, 4, 27, 0, 0, 0, 0, time.UTC)

// stubCreator validates like the catalog service and keeps what it created.
type stubCreator struct {
	created []products.Product
	failOn  string
}

func (s *stubCreator) CreateProduct(_ context.Context, draft products.Draft) (products.Product, error) {
	attrs, err := service.Validate(draft, cutoff)
	if err != nil {
		return products.Product{}, err
	}
	if attrs.Name == s.failOn {
		return products.Product{}, errors.New("insert product: connection reset")
	}
	p := products.Product{ID: int64(len(s.created) + 1), Attributes: attrs}
	s.created = append(s.created, p)
	return p, nil
}

type stubPublisher struct {
	events []products.ProductEvent
}

func (s *stubPublisher) Publish(_ context.Context, event products.ProductEvent) error {
	s.events = append(s.events, event)
	return nil
}

func newTestImporter(creator Creator, pub Publisher) (*Importer, *prometheus.CounterVec) {
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "t_import_rows", Help: "t"}, []string{"result"})
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	return New(creator, pub, logger, rows), rows
}

func TestImport_SkipsInvalidRows(t *testing.T) {
	input := strings.Join([]string{
		"name,category,quantity,purchase_price,purchase_currency",
		"Arroz,Grãos,10,\"5,00\",BRL",
		"Feijão,Grãos,4,\"7,25\",BRL",
		"Milho,Grãos,-1,\"3,10\",BRL",
		"Suco,Bebidas,6,2.50,USD",
		"Café,Bebidas,2,\"18,90\",BRL",
	}, "\n")

	creator := &stubCreator{}
	pub := &stubPublisher{}
	im, rows := newTestImporter(creator, pub)

	report, err := im.Import(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 4, report.ImportedCount)
	assert.Equal(t, []RowFailure{{Row: 3, Reason: "quantity must be > 0"}}, report.Failures)
	assert.Len(t, creator.created, 4)

	require.Len(t, pub.events, 1)
	assert.Equal(t, products.EventImported, pub.events[0].EventType)
	assert.Equal(t, 4, pub.events[0].ImportedCount)

	assert.Equal(t, 4.0, testutil.ToFloat64(rows.WithLabelValues(resultImported)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rows.WithLabelValues(resultFailed)))
}

func TestImport_RowFailures(t *testing.T) {
	input := strings.Join([]string{
		"name,category,quantity,purchase_price,purchase_currency,expiration_date",
		"Arroz,Grãos,10,\"5,00\",BRL",
		"Feijão,Grãos,dez,\"7,25\",BRL,2026-01-01",
		"Milho,Grãos,3,\"3,10\",BRL,2025-04-27",
		"Erro,Grãos,3,\"3,10\",BRL,2026-01-01",
		"Sal,Temperos,1,\"2,00\",BRL,31/12/2025",
		strings.Repeat("x", 256) + ",Grãos,1,\"123456789,00\",BRL,",
	}, "\n")

	creator := &stubCreator{failOn: "Erro"}
	im, _ := newTestImporter(creator, &stubPublisher{})

	report, err := im.Import(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 1, report.ImportedCount)
	require.Len(t, report.Failures, 5)
	assert.Equal(t, RowFailure{Row: 1, Reason: "expected 6 columns, got 5"}, report.Failures[0])
	assert.Equal(t, RowFailure{Row: 2, Reason: "quantity must be an integer"}, report.Failures[1])
	assert.Equal(t, 3, report.Failures[2].Row)
	assert.Contains(t, report.Failures[2].Reason, "expiration_date")
	assert.Equal(t, RowFailure{Row: 4, Reason: "failed to store product"}, report.Failures[3])
	assert.Equal(t, RowFailure{
		Row:    6,
		Reason: "name must be at most 255 characters; purchase_price must be less than 100000000",
	}, report.Failures[4])
}

func TestImport_SemicolonAndHeaders(t *testing.T) {
	input := "\uFEFFName;Category;Quantity;purchasePrice;PURCHASE_CURRENCY;salePrice;saleCurrency\r\n" +
		"Arroz;Grãos;10;5,00;brl;7,50;BRL\r\n"

	creator := &stubCreator{}
	im, _ := newTestImporter(creator, &stubPublisher{})

	report, err := im.Import(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, 1, report.ImportedCount, "failures: %+v", report.Failures)

	p := creator.created[0]
	assert.Equal(t, "Arroz", p.Name)
	assert.Equal(t, "5,00 BRL", p.PurchasePrice.String())
	require.NotNil(t, p.SalePrice)
	assert.Equal(t, "7,50 BRL", p.SalePrice.String())
}

func TestImport_FileErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "empty file", input: "", wantErr: ErrEmptyFile},
		{name: "only a BOM", input: "\uFEFF\n", wantErr: ErrEmptyFile},
		{name: "missing columns", input: "name,category\nArroz,Grãos\n", wantErr: ErrMissingColumns},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creator := &stubCreator{}
			pub := &stubPublisher{}
			im, _ := newTestImporter(creator, pub)

			_, err := im.Import(context.Background(), strings.NewReader(tt.input))
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, creator.created)
			assert.Empty(t, pub.events)
		})
	}
}

func TestImport_MalformedRowContinues(t *testing.T) {
	input := "name,category,quantity,purchase_price,purchase_currency\n" +
		"Arr\"oz,Grãos,10,5.00,USD\n" +
		"Suco,Bebidas,6,2.50,USD\n"

	creator := &stubCreator{}
	im, _ := newTestImporter(creator, &stubPublisher{})

	report, err := im.Import(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 1, report.ImportedCount)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, 1, report.Failures[0].Row)
	assert.True(t, strings.HasPrefix(report.Failures[0].Reason, "malformed csv row"))
}

func TestImport_CancelledContext(t *testing.T) {
	input := "name,category,quantity,purchase_price,purchase_currency\nArroz,Grãos,10,5.00,USD\n"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	creator := &stubCreator{}
	im, _ := newTestImporter(creator, &stubPublisher{})

	_, err := im.Import(ctx, strings.NewReader(input))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, creator.created)
}
