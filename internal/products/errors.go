package products

import "strings"

// Field names used in validation errors. They match the CSV columns.
const (
	FieldName             = "name"
	FieldCategory         = "category"
	FieldQuantity         = "quantity"
	FieldPurchasePrice    = "purchase_price"
	FieldPurchaseCurrency = "purchase_currency"
	FieldSalePrice        = "sale_price"
	FieldSaleCurrency     = "sale_currency"
	FieldExpirationDate   = "expiration_date"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every invalid field of a draft, in check order.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// Err returns nil when no field failed.
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, "; ")
}
