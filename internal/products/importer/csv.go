// Package importer bulk-creates products from CSV uploads.
package importer

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"product-catalog/internal/products"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultImported = "imported"
	resultFailed   = "failed"

	utf8BOM = "\uFEFF"
)

var (
	ErrEmptyFile      = errors.New("csv file is empty")
	ErrMissingColumns = errors.New("csv header is missing required columns")
)

var requiredColumns = []string{
	products.FieldName,
	products.FieldCategory,
	products.FieldQuantity,
	products.FieldPurchasePrice,
	products.FieldPurchaseCurrency,
}

// headerAliases maps a header folded to lower case without separators onto
// its column name.
var headerAliases = map[string]string{
	"name":             products.FieldName,
	"category":         products.FieldCategory,
	"quantity":         products.FieldQuantity,
	"purchaseprice":    products.FieldPurchasePrice,
	"purchasecurrency": products.FieldPurchaseCurrency,
	"saleprice":        products.FieldSalePrice,
	"salecurrency":     products.FieldSaleCurrency,
	"expirationdate":   products.FieldExpirationDate,
}

type Creator interface {
	CreateProduct(ctx context.Context, draft products.Draft) (products.Product, error)
}

type Publisher interface {
	Publish(ctx context.Context, event products.ProductEvent) error
}

// RowFailure explains why one data row was skipped. Rows are numbered from 1,
// not counting the header.
type RowFailure struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type Report struct {
	ImportedCount int          `json:"imported_count"`
	Failures      []RowFailure `json:"failures"`
}

type Importer struct {
	creator   Creator
	publisher Publisher
	logger    *slog.Logger
	rows      *prometheus.CounterVec
	now       func() time.Time
}

// New builds an importer. rows must have a single "result" label.
func New(creator Creator, publisher Publisher, logger *slog.Logger, rows *prometheus.CounterVec) *Importer {
	return &Importer{
		creator:   creator,
		publisher: publisher,
		logger:    logger,
		rows:      rows,
		now:       time.Now,
	}
}

// Import reads the CSV one record at a time and creates a product per valid
// row. Bad rows are reported and skipped; only an unreadable header, a read
// error or a cancelled context stop the run.
func (im *Importer) Import(ctx context.Context, r io.Reader) (Report, error) {
	report := Report{Failures: make([]RowFailure, 0)}

	br := bufio.NewReader(r)
	firstLine, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return report, fmt.Errorf("read csv header: %w", err)
	}
	firstLine = strings.TrimPrefix(firstLine, utf8BOM)
	if strings.TrimSpace(firstLine) == "" {
		return report, ErrEmptyFile
	}

	cr := csv.NewReader(io.MultiReader(strings.NewReader(firstLine), br))
	cr.Comma = detectDelimiter(firstLine)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return report, fmt.Errorf("read csv header: %w", err)
	}
	columns, err := mapColumns(header)
	if err != nil {
		return report, err
	}

	for row := 1; ; row++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			im.fail(&report, row, "malformed csv row: "+parseErr.Err.Error())
			continue
		}
		if err != nil {
			return report, fmt.Errorf("read csv row %d: %w", row, err)
		}

		if len(record) != len(header) {
			im.fail(&report, row, fmt.Sprintf("expected %d columns, got %d", len(header), len(record)))
			continue
		}

		draft, reason := buildDraft(record, columns)
		if reason != "" {
			im.fail(&report, row, reason)
			continue
		}

		if _, err := im.creator.CreateProduct(ctx, draft); err != nil {
			var verr *products.ValidationError
			if errors.As(err, &verr) {
				im.fail(&report, row, verr.Error())
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			im.logger.Error("import row failed", "row", row, "error", err)
			im.fail(&report, row, "failed to store product")
			continue
		}

		report.ImportedCount++
		im.rows.WithLabelValues(resultImported).Inc()
	}

	if err := im.publisher.Publish(ctx, products.ProductEvent{
		EventType:     products.EventImported,
		ImportedCount: report.ImportedCount,
		Timestamp:     im.now().UTC(),
	}); err != nil {
		im.logger.Error("publish products_imported event failed", "error", err)
	}

	im.logger.Info("csv import finished",
		"imported", report.ImportedCount,
		"failed", len(report.Failures),
	)
	return report, nil
}

func (im *Importer) fail(report *Report, row int, reason string) {
	report.Failures = append(report.Failures, RowFailure{Row: row, Reason: reason})
	im.rows.WithLabelValues(resultFailed).Inc()
}

// detectDelimiter picks ';' when the header uses it more than ','. Semicolon
// files let BRL prices stay unquoted.
func detectDelimiter(headerLine string) rune {
	if strings.Count(headerLine, ";") > strings.Count(headerLine, ",") {
		return ';'
	}
	return ','
}

// mapColumns returns the record index of every known column.
func mapColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		key = strings.NewReplacer("_", "", " ", "", "-", "").Replace(key)
		if name, ok := headerAliases[key]; ok {
			if _, dup := columns[name]; !dup {
				columns[name] = i
			}
		}
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return columns, nil
}

func buildDraft(record []string, columns map[string]int) (products.Draft, string) {
	value := func(name string) string {
		i, ok := columns[name]
		if !ok {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	draft := products.Draft{
		Name:             value(products.FieldName),
		Category:         value(products.FieldCategory),
		PurchasePrice:    products.TextPrice(value(products.FieldPurchasePrice)),
		PurchaseCurrency: value(products.FieldPurchaseCurrency),
		SalePrice:        products.TextPrice(value(products.FieldSalePrice)),
		SaleCurrency:     value(products.FieldSaleCurrency),
		ExpirationDate:   value(products.FieldExpirationDate),
	}

	if raw := value(products.FieldQuantity); raw != "" {
		q, err := strconv.Atoi(raw)
		if err != nil {
			return products.Draft{}, "quantity must be an integer"
		}
		draft.Quantity = &q
	}
	return draft, ""
}
