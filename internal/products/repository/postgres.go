package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"product-catalog/internal/money"
	"product-catalog/internal/products"

	"github.com/shopspring/decimal"
)

const healthCheckTimeout = 2 * time.Second

const productColumns = `id, name, category, quantity, purchase_price, purchase_currency,
		sale_price, sale_currency, expiration_date, created_at`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (products.Product, error) {
	var (
		p              products.Product
		purchaseCur    string
		salePrice      decimal.NullDecimal
		saleCurrency   sql.NullString
		expirationDate sql.NullTime
	)
	if err := row.Scan(
		&p.ID, &p.Name, &p.Category, &p.Quantity,
		&p.PurchasePrice.Amount, &purchaseCur,
		&salePrice, &saleCurrency, &expirationDate, &p.CreatedAt,
	); err != nil {
		return products.Product{}, err
	}

	p.PurchasePrice.Currency = money.Currency(purchaseCur)
	if salePrice.Valid {
		sp := money.New(salePrice.Decimal, money.Currency(saleCurrency.String))
		p.SalePrice = &sp
	}
	if expirationDate.Valid {
		d := products.DateOnly(expirationDate.Time)
		p.ExpirationDate = &d
	}
	return p, nil
}

func attributeArgs(a products.Attributes) []any {
	var (
		salePrice    decimal.NullDecimal
		saleCurrency sql.NullString
		expiration   sql.NullTime
	)
	if a.SalePrice != nil {
		salePrice = decimal.NewNullDecimal(a.SalePrice.Amount)
		saleCurrency = sql.NullString{String: string(a.SalePrice.Currency), Valid: true}
	}
	if a.ExpirationDate != nil {
		expiration = sql.NullTime{Time: *a.ExpirationDate, Valid: true}
	}
	return []any{
		a.Name,
		a.Category,
		a.Quantity,
		a.PurchasePrice.Amount,
		string(a.PurchasePrice.Currency),
		salePrice,
		saleCurrency,
		expiration,
	}
}

func (r *PostgresRepository) Create(ctx context.Context, attrs products.Attributes) (products.Product, error) {
	query := `
		INSERT INTO products (
			name, category, quantity, purchase_price, purchase_currency,
			sale_price, sale_currency, expiration_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	p := products.Product{Attributes: attrs}
	if err := r.db.QueryRowContext(ctx, query, attributeArgs(attrs)...).Scan(&p.ID, &p.CreatedAt); err != nil {
		return products.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (products.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	p, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return products.Product{}, products.ErrNotFound
		}
		return products.Product{}, fmt.Errorf("get product %d: %w", id, err)
	}
	return p, nil
}

func (r *PostgresRepository) Update(ctx context.Context, id int64, attrs products.Attributes) (products.Product, error) {
	query := `
		UPDATE products
		SET name = $1,
			category = $2,
			quantity = $3,
			purchase_price = $4,
			purchase_currency = $5,
			sale_price = $6,
			sale_currency = $7,
			expiration_date = $8
		WHERE id = $9
		RETURNING created_at
	`

	p := products.Product{ID: id, Attributes: attrs}
	args := append(attributeArgs(attrs), id)
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return products.Product{}, products.ErrNotFound
		}
		return products.Product{}, fmt.Errorf("update product %d: %w", id, err)
	}
	return p, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM products WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete product %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return products.ErrNotFound
	}

	return nil
}

// Search matches name case-insensitively; the term is matched literally.
func (r *PostgresRepository) Search(ctx context.Context, q products.SearchQuery) (products.SearchResult, error) {
	pattern := "%" + likeEscaper.Replace(q.Term) + "%"

	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE name ILIKE $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, pattern, q.PageSize, q.Offset())
	if err != nil {
		return products.SearchResult{}, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	list := make([]products.Product, 0, q.PageSize)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return products.SearchResult{}, fmt.Errorf("scan product: %w", err)
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return products.SearchResult{}, fmt.Errorf("iterate products: %w", err)
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM products WHERE name ILIKE $1`
	if err := r.db.QueryRowContext(ctx, countQuery, pattern).Scan(&total); err != nil {
		return products.SearchResult{}, fmt.Errorf("count products: %w", err)
	}

	return products.SearchResult{Items: list, Total: total}, nil
}

func (r *PostgresRepository) Categories(ctx context.Context) ([]string, error) {
	return r.distinct(ctx, `SELECT DISTINCT category FROM products ORDER BY category`)
}

func (r *PostgresRepository) Names(ctx context.Context) ([]string, error) {
	return r.distinct(ctx, `SELECT DISTINCT name FROM products ORDER BY name`)
}

func (r *PostgresRepository) distinct(ctx context.Context, query string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query distinct values: %w", err)
	}
	defer rows.Close()

	values := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan distinct value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distinct values: %w", err)
	}
	return values, nil
}

// History sums quantities per month of registration for one category or name.
func (r *PostgresRepository) History(ctx context.Context, key products.Key) ([]products.MonthlyQuantity, error) {
	column := "category"
	if key.Type == products.KeyTypeName {
		column = "name"
	}

	query := `
		SELECT EXTRACT(YEAR FROM created_at)::int AS year,
			EXTRACT(MONTH FROM created_at)::int AS month,
			SUM(quantity)::bigint AS quantity
		FROM products
		WHERE ` + column + ` = $1
		GROUP BY year, month
		ORDER BY year, month
	`

	rows, err := r.db.QueryContext(ctx, query, key.Value)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	points := make([]products.MonthlyQuantity, 0)
	for rows.Next() {
		var p products.MonthlyQuantity
		if err := rows.Scan(&p.Year, &p.Month, &p.Quantity); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return points, nil
}

// Summary computes dashboard metrics. Products expiring on or after today and
// on or before soonUntil count as expiring soon.
func (r *PostgresRepository) Summary(ctx context.Context, today, soonUntil time.Time) (products.Summary, error) {
	var s products.Summary

	totals := `
		SELECT COUNT(*),
			COALESCE(SUM(quantity), 0),
			COUNT(*) FILTER (WHERE expiration_date < $1),
			COUNT(*) FILTER (WHERE expiration_date >= $1 AND expiration_date <= $2)
		FROM products
	`
	if err := r.db.QueryRowContext(ctx, totals, today, soonUntil).
		Scan(&s.TotalProducts, &s.TotalQuantity, &s.Expired, &s.ExpiringSoon); err != nil {
		return products.Summary{}, fmt.Errorf("query summary totals: %w", err)
	}

	var err error
	if s.TopCategory, err = r.top(ctx, "category"); err != nil {
		return products.Summary{}, err
	}
	if s.TopProduct, err = r.top(ctx, "name"); err != nil {
		return products.Summary{}, err
	}
	return s, nil
}

func (r *PostgresRepository) top(ctx context.Context, column string) (string, error) {
	query := `
		SELECT ` + column + `
		FROM products
		GROUP BY ` + column + `
		ORDER BY SUM(quantity) DESC, ` + column + `
		LIMIT 1
	`

	var value string
	if err := r.db.QueryRowContext(ctx, query).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("query top %s: %w", column, err)
	}
	return value, nil
}

func (r *PostgresRepository) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()
	return r.db.PingContext(ctx)
}
