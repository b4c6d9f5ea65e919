package http

import (
	"encoding/json"
	"time"

	"product-catalog/internal/money"
	"product-catalog/internal/products"
)

type errorResponse struct {
	Error  string                `json:"error" example:"product not found"`
	Fields []products.FieldError `json:"fields,omitempty"`
}

type messageResponse struct {
	Message string `json:"message" example:"product deleted"`
}

// productResponse carries prices as numbers next to their display text and
// dates in both machine and display form.
type productResponse struct {
	ID                    int64        `json:"id" example:"1"`
	Name                  string       `json:"name" example:"Arroz"`
	Category              string       `json:"category" example:"Grãos"`
	Quantity              int          `json:"quantity" example:"10"`
	PurchasePrice         json.Number  `json:"purchase_price" swaggertype:"number" example:"5.00"`
	PurchaseCurrency      string       `json:"purchase_currency" example:"BRL"`
	PurchasePriceDisplay  string       `json:"purchase_price_display" example:"5,00"`
	SalePrice             *json.Number `json:"sale_price,omitempty" swaggertype:"number" example:"7.50"`
	SaleCurrency          string       `json:"sale_currency,omitempty" example:"BRL"`
	SalePriceDisplay      string       `json:"sale_price_display,omitempty" example:"7,50"`
	ExpirationDate        string       `json:"expiration_date,omitempty" example:"2025-12-31"`
	ExpirationDateDisplay string       `json:"expiration_date_display,omitempty" example:"31/12/2025"`
	RegistrationDate      string       `json:"registration_date" example:"2025-06-01"`
	RegistrationDisplay   string       `json:"registration_date_display" example:"01/06/2025"`
	CreatedAt             time.Time    `json:"created_at"`
}

func newProductResponse(p products.Product, loc *time.Location) productResponse {
	registered := p.CreatedAt.In(loc)
	resp := productResponse{
		ID:                   p.ID,
		Name:                 p.Name,
		Category:             p.Category,
		Quantity:             p.Quantity,
		PurchasePrice:        json.Number(p.PurchasePrice.Wire()),
		PurchaseCurrency:     string(p.PurchasePrice.Currency),
		PurchasePriceDisplay: money.Format(p.PurchasePrice),
		RegistrationDate:     products.MachineDate(registered),
		RegistrationDisplay:  products.RegistrationDate(p.CreatedAt, loc),
		CreatedAt:            p.CreatedAt,
	}
	if p.SalePrice != nil {
		sale := json.Number(p.SalePrice.Wire())
		resp.SalePrice = &sale
		resp.SaleCurrency = string(p.SalePrice.Currency)
		resp.SalePriceDisplay = money.Format(*p.SalePrice)
	}
	if p.ExpirationDate != nil {
		resp.ExpirationDate = products.MachineDate(*p.ExpirationDate)
		resp.ExpirationDateDisplay = products.DisplayDate(*p.ExpirationDate)
	}
	return resp
}

type savedProductResponse struct {
	ID        int64     `json:"id" example:"1"`
	CreatedAt time.Time `json:"created_at"`
}

type listProductsResponse struct {
	Products   []productResponse `json:"products"`
	Total      int64             `json:"total" example:"42"`
	Page       int               `json:"page" example:"1"`
	PageSize   int               `json:"page_size" example:"10"`
	TotalPages int               `json:"total_pages" example:"5"`
}

type categoriesResponse struct {
	Categories []string `json:"categories"`
}

type namesResponse struct {
	Names []string `json:"names"`
}

type historyResponse struct {
	KeyType string                     `json:"key_type" example:"category"`
	Key     string                     `json:"key" example:"Grãos"`
	Data    []products.MonthlyQuantity `json:"data"`
}

type dashboardResponse struct {
	Metrics products.Summary `json:"metrics"`
}

type forecastRefreshRequest struct {
	Category string `json:"category" example:"Grãos"`
	Name     string `json:"name"`
}
