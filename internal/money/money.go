// Package money parses and formats currency-tagged decimal amounts.
//
// Amounts travel in two shapes: locale text typed by people ("10,50" for BRL,
// "10.50" for USD) and the wire form used by JSON numbers and the database,
// which always uses a dot. Both are normalized into Money.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const fractionDigits = 2

var (
	ErrInvalidFormat    = errors.New("invalid amount format")
	ErrUnknownCurrency  = errors.New("unknown currency")
	ErrCurrencyMismatch = errors.New("currency mismatch")
)

type Currency string

const (
	BRL Currency = "BRL"
	USD Currency = "USD"
)

// decimalSeparators lists the recognized currencies and the fractional
// separator their display text uses.
var decimalSeparators = map[Currency]byte{
	BRL: ',',
	USD: '.',
}

// Currencies returns the recognized currency codes in a stable order.
func Currencies() []Currency {
	return []Currency{BRL, USD}
}

// ParseCurrency accepts a currency code in any letter case.
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if _, ok := decimalSeparators[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	return c, nil
}

func (c Currency) Valid() bool {
	_, ok := decimalSeparators[c]
	return ok
}

// DecimalSeparator is the fractional separator of the currency's display text.
func (c Currency) DecimalSeparator() string {
	return string(decimalSeparators[c])
}

func (c Currency) separator() byte {
	return decimalSeparators[c]
}

type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency Currency        `json:"currency"`
}

func New(amount decimal.Decimal, currency Currency) Money {
	return Money{Amount: amount, Currency: currency}
}

// Parse reads locale text: digits with at most one fractional separator
// followed by one or two digits. The separator must be the currency's own.
func Parse(text string, currency Currency) (Money, error) {
	if !currency.Valid() {
		return Money{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, currency)
	}
	return parseWith(text, currency, currency.separator())
}

// ParseNumber reads the wire form (dot separator) for any currency.
func ParseNumber(text string, currency Currency) (Money, error) {
	if !currency.Valid() {
		return Money{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, currency)
	}
	return parseWith(text, currency, '.')
}

func parseWith(text string, currency Currency, sep byte) (Money, error) {
	s := strings.TrimSpace(text)
	whole, frac, hasSep := strings.Cut(s, string(sep))
	if whole == "" || !allDigits(whole) {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidFormat, text)
	}
	if hasSep && (frac == "" || len(frac) > fractionDigits || !allDigits(frac)) {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidFormat, text)
	}

	canonical := whole
	if hasSep {
		canonical += "." + frac
	}
	amount, err := decimal.NewFromString(canonical)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidFormat, text)
	}
	return Money{Amount: amount, Currency: currency}, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Format renders the amount with two fixed fractional digits using the
// currency's separator.
func Format(m Money) string {
	text := m.Amount.StringFixed(fractionDigits)
	if sep, ok := decimalSeparators[m.Currency]; ok && sep != '.' {
		text = strings.Replace(text, ".", string(sep), 1)
	}
	return text
}

func (m Money) String() string {
	return Format(m) + " " + string(m.Currency)
}

// Wire returns the amount as plain decimal text with two fractional digits.
func (m Money) Wire() string {
	return m.Amount.StringFixed(fractionDigits)
}

func (m Money) IsPositive() bool {
	return m.Amount.IsPositive()
}

// Cmp orders two amounts of the same currency.
func Cmp(a, b Money) (int, error) {
	if a.Currency != b.Currency {
		return 0, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, a.Currency, b.Currency)
	}
	return a.Amount.Cmp(b.Amount), nil
}

func Equal(a, b Money) (bool, error) {
	c, err := Cmp(a, b)
	if err != nil {
		return false, err
	}
	return c == 0, nil
}
