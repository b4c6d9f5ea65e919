package products

import (
	"errors"
	"time"

	"product-catalog/internal/money"
)

var (
	ErrNotFound   = errors.New("product not found")
	ErrInvalidKey = errors.New("exactly one of category or name is required")
)

const (
	EventsQueue   = "products.events"
	EventCreated  = "product_created"
	EventUpdated  = "product_updated"
	EventDeleted  = "product_deleted"
	EventImported = "products_imported"
)

// PageSize is the fixed number of products per search page.
const PageSize = 10

const (
	KeyTypeCategory = "category"
	KeyTypeName     = "name"
)

// Attributes are the mutable fields of a product, already validated.
type Attributes struct {
	Name           string       `json:"name"`
	Category       string       `json:"category"`
	Quantity       int          `json:"quantity"`
	PurchasePrice  money.Money  `json:"purchase_price"`
	SalePrice      *money.Money `json:"sale_price,omitempty"`
	ExpirationDate *time.Time   `json:"expiration_date,omitempty"`
}

type Product struct {
	ID int64 `json:"id"`
	Attributes
	CreatedAt time.Time `json:"created_at"`
}

// Draft is unvalidated client input for creating or replacing a product.
// The tags hold the rules that do not depend on the currency or the cutoff
// date; they are checked after names and currency codes are normalized.
type Draft struct {
	Name             string     `json:"name" validate:"required,max=255"`
	Category         string     `json:"category" validate:"required,max=100"`
	Quantity         *int       `json:"quantity" validate:"required,gt=0,lte=2147483647"`
	PurchasePrice    PriceInput `json:"purchasePrice"`
	PurchaseCurrency string     `json:"purchaseCurrency" validate:"required,oneof=BRL USD"`
	SalePrice        PriceInput `json:"salePrice"`
	SaleCurrency     string     `json:"saleCurrency" validate:"required_with=SalePrice,omitempty,oneof=BRL USD"`
	ExpirationDate   string     `json:"expirationDate"`
}

type SearchQuery struct {
	Term     string
	Page     int
	PageSize int
}

func (q SearchQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

type SearchResult struct {
	Items []Product
	Total int64
}

// Page is a search result together with the pagination it was computed for.
type Page struct {
	Items      []Product
	Total      int64
	Page       int
	PageSize   int
	TotalPages int
}

// Key selects a history or forecast series by category or by product name.
type Key struct {
	Type  string
	Value string
}

// NewKey builds a Key from the two mutually exclusive filters.
func NewKey(category, name string) (Key, error) {
	switch {
	case category != "" && name == "":
		return Key{Type: KeyTypeCategory, Value: category}, nil
	case name != "" && category == "":
		return Key{Type: KeyTypeName, Value: name}, nil
	default:
		return Key{}, ErrInvalidKey
	}
}

// MonthlyQuantity is one point of a history or forecast series.
type MonthlyQuantity struct {
	Year     int `json:"year"`
	Month    int `json:"month"`
	Quantity int `json:"quantity"`
}

type Summary struct {
	TotalProducts int64  `json:"total_products"`
	TotalQuantity int64  `json:"total_quantity"`
	Expired       int64  `json:"expired"`
	ExpiringSoon  int64  `json:"expiring_soon"`
	TopCategory   string `json:"top_category"`
	TopProduct    string `json:"top_product"`
}

type ProductEvent struct {
	EventType      string     `json:"event_type"`
	ProductID      int64      `json:"product_id,omitempty"`
	Name           string     `json:"name,omitempty"`
	Category       string     `json:"category,omitempty"`
	Quantity       int        `json:"quantity,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	ImportedCount  int        `json:"imported_count,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
}
