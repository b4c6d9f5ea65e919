package products

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"product-catalog/internal/money"
)

// PriceInput is a price as submitted by a client. Strings are locale text
// tied to the declared currency; JSON numbers are the wire form.
type PriceInput struct {
	Text    string
	Numeric bool
}

func TextPrice(text string) PriceInput {
	return PriceInput{Text: text}
}

func NumericPrice(text string) PriceInput {
	return PriceInput{Text: text, Numeric: true}
}

func (p PriceInput) IsZero() bool {
	return strings.TrimSpace(p.Text) == ""
}

// Money parses the input for the given currency.
func (p PriceInput) Money(currency money.Currency) (money.Money, error) {
	if p.Numeric {
		return money.ParseNumber(p.Text, currency)
	}
	return money.Parse(p.Text, currency)
}

func (p *PriceInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*p = PriceInput{}
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = TextPrice(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("price must be a string or a number: %w", err)
		}
		*p = NumericPrice(n.String())
	}
	return nil
}

func (p PriceInput) MarshalJSON() ([]byte, error) {
	if p.IsZero() {
		return []byte("null"), nil
	}
	if p.Numeric {
		return []byte(p.Text), nil
	}
	return json.Marshal(p.Text)
}
