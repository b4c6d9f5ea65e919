package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"product-catalog/internal/money"
	"product-catalog/internal/products"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	testCutoff = time.Date(2025, 4, 27, 0, 0, 0, 0, time.UTC)
	testNow    = time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
)

// memRepo is an in-memory Repository ordered like the Postgres one.
type memRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]products.Product
	clock  time.Time

	summaryFn func(today, soonUntil time.Time) (products.Summary, error)
	createErr error
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[int64]products.Product), clock: testNow}
}

func (m *memRepo) Create(_ context.Context, attrs products.Attributes) (products.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return products.Product{}, m.createErr
	}
	m.nextID++
	m.clock = m.clock.Add(time.Second)
	p := products.Product{ID: m.nextID, Attributes: attrs, CreatedAt: m.clock}
	m.rows[p.ID] = p
	return p, nil
}

func (m *memRepo) GetByID(_ context.Context, id int64) (products.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return products.Product{}, products.ErrNotFound
	}
	return p, nil
}

func (m *memRepo) Update(_ context.Context, id int64, attrs products.Attributes) (products.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return products.Product{}, products.ErrNotFound
	}
	p.Attributes = attrs
	m.rows[id] = p
	return p, nil
}

func (m *memRepo) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return products.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memRepo) Search(_ context.Context, q products.SearchQuery) (products.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := make([]products.Product, 0)
	for _, p := range m.rows {
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(q.Term)) {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	items := make([]products.Product, 0, q.PageSize)
	for i := q.Offset(); i < len(matched) && len(items) < q.PageSize; i++ {
		items = append(items, matched[i])
	}
	return products.SearchResult{Items: items, Total: int64(len(matched))}, nil
}

func (m *memRepo) Categories(context.Context) ([]string, error) { return nil, nil }
func (m *memRepo) Names(context.Context) ([]string, error)      { return nil, nil }
func (m *memRepo) History(context.Context, products.Key) ([]products.MonthlyQuantity, error) {
	return nil, nil
}
func (m *memRepo) Summary(_ context.Context, today, soonUntil time.Time) (products.Summary, error) {
	if m.summaryFn == nil {
		return products.Summary{}, nil
	}
	return m.summaryFn(today, soonUntil)
}

type mockPublisher struct {
	events []products.ProductEvent
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, event products.ProductEvent) error {
	m.events = append(m.events, event)
	return m.err
}

func testMetrics() Metrics {
	return Metrics{
		Created: prometheus.NewCounter(prometheus.CounterOpts{Name: "t_created", Help: "t"}),
		Updated: prometheus.NewCounter(prometheus.CounterOpts{Name: "t_updated", Help: "t"}),
		Deleted: prometheus.NewCounter(prometheus.CounterOpts{Name: "t_deleted", Help: "t"}),
	}
}

func newTestService(repo Repository, pub Publisher) *Service {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	return New(repo, pub, logger, testMetrics(), Config{
		ExpirationCutoff: testCutoff,
		Now:              func() time.Time { return testNow },
	})
}

func intPtr(v int) *int { return &v }

func arrozDraft() products.Draft {
	return products.Draft{
		Name:             "Arroz",
		Category:         "Grãos",
		Quantity:         intPtr(10),
		PurchasePrice:    products.TextPrice("5,00"),
		PurchaseCurrency: "BRL",
	}
}

func TestCreateProduct(t *testing.T) {
	errDB := errors.New("db down")

	tests := []struct {
		name       string
		mutate     func(d *products.Draft)
		repoErr    error
		wantErr    error
		wantFields []string
	}{
		{
			name: "success",
		},
		{
			name:       "quantity zero",
			mutate:     func(d *products.Draft) { d.Quantity = intPtr(0) },
			wantFields: []string{products.FieldQuantity},
		},
		{
			name:       "missing quantity",
			mutate:     func(d *products.Draft) { d.Quantity = nil },
			wantFields: []string{products.FieldQuantity},
		},
		{
			name: "every failure is reported in order",
			mutate: func(d *products.Draft) {
				d.Name = "  "
				d.Category = ""
				d.Quantity = intPtr(-1)
				d.PurchasePrice = products.TextPrice("10.50")
				d.ExpirationDate = "2025-04-27"
			},
			wantFields: []string{
				products.FieldName,
				products.FieldCategory,
				products.FieldQuantity,
				products.FieldPurchasePrice,
				products.FieldExpirationDate,
			},
		},
		{
			name:       "unknown currency",
			mutate:     func(d *products.Draft) { d.PurchaseCurrency = "EUR" },
			wantFields: []string{products.FieldPurchaseCurrency},
		},
		{
			name:       "zero purchase price",
			mutate:     func(d *products.Draft) { d.PurchasePrice = products.NumericPrice("0") },
			wantFields: []string{products.FieldPurchasePrice},
		},
		{
			name: "sale price in its own currency",
			mutate: func(d *products.Draft) {
				d.SalePrice = products.TextPrice("7,50")
				d.SaleCurrency = "USD"
			},
			wantFields: []string{products.FieldSalePrice},
		},
		{
			name:       "sale price without a currency",
			mutate:     func(d *products.Draft) { d.SalePrice = products.TextPrice("7,50") },
			wantFields: []string{products.FieldSaleCurrency},
		},
		{
			name: "sale currency without a sale price is ignored",
			mutate: func(d *products.Draft) {
				d.SaleCurrency = "EUR"
			},
		},
		{
			name: "values beyond the column limits",
			mutate: func(d *products.Draft) {
				d.Name = strings.Repeat("a", 256)
				d.Category = strings.Repeat("c", 101)
				d.Quantity = intPtr(math.MaxInt32 + 1)
				d.PurchasePrice = products.TextPrice("123456789,00")
				d.SalePrice = products.NumericPrice("100000000")
				d.SaleCurrency = "BRL"
			},
			wantFields: []string{
				products.FieldName,
				products.FieldCategory,
				products.FieldQuantity,
				products.FieldPurchasePrice,
				products.FieldSalePrice,
			},
		},
		{
			name: "values at the column limits",
			mutate: func(d *products.Draft) {
				d.Category = strings.Repeat("ã", 100)
				d.Quantity = intPtr(math.MaxInt32)
				d.PurchasePrice = products.TextPrice("99999999,99")
			},
		},
		{
			name:    "repo error is wrapped",
			repoErr: errDB,
			wantErr: errDB,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo()
			repo.createErr = tt.repoErr
			pub := &mockPublisher{}
			svc := newTestService(repo, pub)

			draft := arrozDraft()
			if tt.mutate != nil {
				tt.mutate(&draft)
			}

			product, err := svc.CreateProduct(context.Background(), draft)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("want error wrapping %v, got %v", tt.wantErr, err)
				}
				return
			}
			if tt.wantFields != nil {
				var verr *products.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("want *ValidationError, got %v", err)
				}
				got := make([]string, len(verr.Fields))
				for i, f := range verr.Fields {
					got[i] = f.Field
				}
				if fmt.Sprint(got) != fmt.Sprint(tt.wantFields) {
					t.Fatalf("want fields %v, got %v", tt.wantFields, got)
				}
				if len(pub.events) != 0 {
					t.Fatalf("no event expected on validation failure, got %v", pub.events)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if product.ID == 0 || product.Name != "Arroz" {
				t.Fatalf("unexpected product %+v", product)
			}
			if len(pub.events) != 1 || pub.events[0].EventType != products.EventCreated {
				t.Fatalf("want event %q, got %v", products.EventCreated, pub.events)
			}
		})
	}
}

func TestCreateProduct_ExpirationCutoff(t *testing.T) {
	tests := []struct {
		name    string
		date    string
		wantErr bool
	}{
		{name: "on the cutoff", date: "2025-04-27", wantErr: true},
		{name: "display form on the cutoff", date: "27/04/2025", wantErr: true},
		{name: "day after the cutoff", date: "2025-04-28"},
		{name: "not a date", date: "2025-02-30", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(newMemRepo(), &mockPublisher{})
			draft := arrozDraft()
			draft.ExpirationDate = tt.date

			product, err := svc.CreateProduct(context.Background(), draft)
			if tt.wantErr {
				var verr *products.ValidationError
				if !errors.As(err, &verr) || !verr.Has(products.FieldExpirationDate) {
					t.Fatalf("want expiration_date validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if products.MachineDate(*product.ExpirationDate) != tt.date {
				t.Fatalf("want expiration %s, got %v", tt.date, product.ExpirationDate)
			}
		})
	}
}

func TestCreateProduct_PublishFail_StillReturnsProduct(t *testing.T) {
	pub := &mockPublisher{err: errors.New("broker down")}
	svc := newTestService(newMemRepo(), pub)

	product, err := svc.CreateProduct(context.Background(), arrozDraft())
	if err != nil {
		t.Fatalf("expected no error despite publish failure, got: %v", err)
	}
	if product.Name != "Arroz" {
		t.Fatalf("want name Arroz, got %q", product.Name)
	}
}

func TestProductLifecycle(t *testing.T) {
	ctx := context.Background()
	pub := &mockPublisher{}
	svc := newTestService(newMemRepo(), pub)

	created, err := svc.CreateProduct(ctx, arrozDraft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.GetProduct(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PurchasePrice.String() != "5,00 BRL" || got.Quantity != 10 {
		t.Fatalf("unexpected product %+v", got)
	}

	draft := arrozDraft()
	draft.Quantity = intPtr(20)
	updated, err := svc.UpdateProduct(ctx, created.ID, draft)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Quantity != 20 {
		t.Fatalf("want quantity 20, got %d", updated.Quantity)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("created_at changed: %v -> %v", created.CreatedAt, updated.CreatedAt)
	}

	if err := svc.DeleteProduct(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetProduct(ctx, created.ID); !errors.Is(err, products.ErrNotFound) {
		t.Fatalf("want ErrNotFound after delete, got %v", err)
	}
	if err := svc.DeleteProduct(ctx, created.ID); !errors.Is(err, products.ErrNotFound) {
		t.Fatalf("want ErrNotFound on second delete, got %v", err)
	}
	if _, err := svc.UpdateProduct(ctx, created.ID, draft); !errors.Is(err, products.ErrNotFound) {
		t.Fatalf("want ErrNotFound on update after delete, got %v", err)
	}

	want := []string{products.EventCreated, products.EventUpdated, products.EventDeleted}
	if len(pub.events) != len(want) {
		t.Fatalf("want events %v, got %v", want, pub.events)
	}
	for i, e := range pub.events {
		if e.EventType != want[i] {
			t.Fatalf("event %d: want %q, got %q", i, want[i], e.EventType)
		}
	}
}

func TestSearchProducts(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := newTestService(repo, &mockPublisher{})

	for i := 1; i <= 25; i++ {
		draft := arrozDraft()
		draft.Name = fmt.Sprintf("Arroz %02d", i)
		if _, err := svc.CreateProduct(ctx, draft); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	tests := []struct {
		name       string
		term       string
		page       int
		wantLen    int
		wantTotal  int64
		wantPage   int
		wantPages  int
		wantFirstN string
	}{
		{name: "first page", term: "", page: 1, wantLen: 10, wantTotal: 25, wantPage: 1, wantPages: 3, wantFirstN: "Arroz 25"},
		{name: "third page", term: "", page: 3, wantLen: 5, wantTotal: 25, wantPage: 3, wantPages: 3, wantFirstN: "Arroz 05"},
		{name: "page past the end", term: "", page: 4, wantLen: 0, wantTotal: 25, wantPage: 4, wantPages: 3},
		{name: "invalid page", term: "", page: 0, wantLen: 10, wantTotal: 25, wantPage: 1, wantPages: 3},
		{name: "case-insensitive term", term: "ARROZ 1", page: 1, wantLen: 10, wantTotal: 10, wantPage: 1, wantPages: 1},
		{name: "no match", term: "feijão", page: 1, wantLen: 0, wantTotal: 0, wantPage: 1, wantPages: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.SearchProducts(ctx, tt.term, tt.page)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(page.Items) != tt.wantLen {
				t.Fatalf("want %d items, got %d", tt.wantLen, len(page.Items))
			}
			if page.Total != tt.wantTotal {
				t.Fatalf("want total %d, got %d", tt.wantTotal, page.Total)
			}
			if page.Page != tt.wantPage || page.TotalPages != tt.wantPages {
				t.Fatalf("want page %d of %d, got %d of %d", tt.wantPage, tt.wantPages, page.Page, page.TotalPages)
			}
			if tt.wantFirstN != "" && page.Items[0].Name != tt.wantFirstN {
				t.Fatalf("want first item %q, got %q", tt.wantFirstN, page.Items[0].Name)
			}
		})
	}
}

func TestDashboardSummary_Window(t *testing.T) {
	repo := newMemRepo()
	repo.summaryFn = func(today, soonUntil time.Time) (products.Summary, error) {
		wantToday := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		if !today.Equal(wantToday) {
			t.Fatalf("want today %v, got %v", wantToday, today)
		}
		if !soonUntil.Equal(wantToday.AddDate(0, 0, 30)) {
			t.Fatalf("want 30 day window, got %v", soonUntil)
		}
		return products.Summary{TotalProducts: 2}, nil
	}
	svc := newTestService(repo, &mockPublisher{})

	s, err := svc.DashboardSummary(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.TotalProducts != 2 {
		t.Fatalf("want 2 products, got %d", s.TotalProducts)
	}
}

func TestValidate_NumericPrices(t *testing.T) {
	draft := arrozDraft()
	draft.PurchasePrice = products.NumericPrice("5.5")
	draft.SalePrice = products.NumericPrice("8")
	draft.SaleCurrency = " brl "

	attrs, err := Validate(draft, testCutoff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if money.Format(attrs.PurchasePrice) != "5,50" {
		t.Fatalf("want 5,50, got %s", money.Format(attrs.PurchasePrice))
	}
	if attrs.SalePrice == nil || attrs.SalePrice.Currency != money.BRL {
		t.Fatalf("want sale price in BRL, got %v", attrs.SalePrice)
	}
}

func TestValidate_Messages(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *products.Draft)
		field  string
		want   string
	}{
		{
			name:   "blank name",
			mutate: func(d *products.Draft) { d.Name = " " },
			field:  products.FieldName,
			want:   "name is required",
		},
		{
			name:   "long name",
			mutate: func(d *products.Draft) { d.Name = strings.Repeat("a", 300) },
			field:  products.FieldName,
			want:   "name must be at most 255 characters",
		},
		{
			name:   "long category",
			mutate: func(d *products.Draft) { d.Category = strings.Repeat("c", 150) },
			field:  products.FieldCategory,
			want:   "category must be at most 100 characters",
		},
		{
			name:   "negative quantity",
			mutate: func(d *products.Draft) { d.Quantity = intPtr(-1) },
			field:  products.FieldQuantity,
			want:   "quantity must be > 0",
		},
		{
			name:   "quantity beyond integer column",
			mutate: func(d *products.Draft) { d.Quantity = intPtr(math.MaxInt32 + 1) },
			field:  products.FieldQuantity,
			want:   "quantity must be <= 2147483647",
		},
		{
			name:   "purchase price beyond numeric column",
			mutate: func(d *products.Draft) { d.PurchasePrice = products.TextPrice("123456789,00") },
			field:  products.FieldPurchasePrice,
			want:   "purchase_price must be less than 100000000",
		},
		{
			name:   "missing purchase currency",
			mutate: func(d *products.Draft) { d.PurchaseCurrency = "" },
			field:  products.FieldPurchaseCurrency,
			want:   "purchase_currency must be one of BRL, USD",
		},
		{
			name:   "sale price without currency",
			mutate: func(d *products.Draft) { d.SalePrice = products.TextPrice("7,50") },
			field:  products.FieldSaleCurrency,
			want:   "sale_currency must be one of BRL, USD",
		},
		{
			name: "sale price beyond numeric column",
			mutate: func(d *products.Draft) {
				d.SalePrice = products.TextPrice("100000000,00")
				d.SaleCurrency = "BRL"
			},
			field: products.FieldSalePrice,
			want:  "sale_price must be less than 100000000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := arrozDraft()
			tt.mutate(&draft)

			_, err := Validate(draft, testCutoff)
			var verr *products.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("want *ValidationError, got %v", err)
			}
			if len(verr.Fields) != 1 {
				t.Fatalf("want one failing field, got %+v", verr.Fields)
			}
			got := verr.Fields[0]
			if got.Field != tt.field || got.Message != tt.want {
				t.Fatalf("want %s: %q, got %s: %q", tt.field, tt.want, got.Field, got.Message)
			}
		})
	}
}
