package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"product-catalog/internal/money"
	"product-catalog/internal/products"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	draftValidator = validator.New()

	// NUMERIC(10,2) holds amounts below 10^8.
	maxAmount = decimal.New(1, 8)

	currencyList = func() string {
		codes := make([]string, 0, len(money.Currencies()))
		for _, c := range money.Currencies() {
			codes = append(codes, string(c))
		}
		return strings.Join(codes, ", ")
	}()
)

// draftFields maps Draft struct fields to their wire names.
var draftFields = map[string]string{
	"Name":             products.FieldName,
	"Category":         products.FieldCategory,
	"Quantity":         products.FieldQuantity,
	"PurchaseCurrency": products.FieldPurchaseCurrency,
	"SaleCurrency":     products.FieldSaleCurrency,
}

// Validate turns a draft into product attributes. All failing fields are
// reported together, in a fixed order.
func Validate(d products.Draft, cutoff time.Time) (products.Attributes, error) {
	var (
		verr  products.ValidationError
		attrs products.Attributes
	)

	d = normalize(d)
	rules := tagErrors(d)

	if msg, ok := rules[products.FieldName]; ok {
		verr.Add(products.FieldName, msg)
	} else {
		attrs.Name = d.Name
	}

	if msg, ok := rules[products.FieldCategory]; ok {
		verr.Add(products.FieldCategory, msg)
	} else {
		attrs.Category = d.Category
	}

	if msg, ok := rules[products.FieldQuantity]; ok {
		verr.Add(products.FieldQuantity, msg)
	} else {
		attrs.Quantity = *d.Quantity
	}

	currencyMsg, badCurrency := rules[products.FieldPurchaseCurrency]
	switch {
	case d.PurchasePrice.IsZero():
		verr.Add(products.FieldPurchasePrice, "purchase_price is required")
	case badCurrency:
		// The format depends on the currency; it is reported below.
	default:
		currency := money.Currency(d.PurchaseCurrency)
		price, err := d.PurchasePrice.Money(currency)
		switch {
		case err != nil:
			verr.Add(products.FieldPurchasePrice, invalidAmount(products.FieldPurchasePrice, currency))
		case !price.IsPositive():
			verr.Add(products.FieldPurchasePrice, "purchase_price must be > 0")
		case price.Amount.GreaterThanOrEqual(maxAmount):
			verr.Add(products.FieldPurchasePrice, tooLarge(products.FieldPurchasePrice))
		default:
			attrs.PurchasePrice = price
		}
	}
	if badCurrency {
		verr.Add(products.FieldPurchaseCurrency, currencyMsg)
	}

	if !d.SalePrice.IsZero() {
		if msg, ok := rules[products.FieldSaleCurrency]; ok {
			verr.Add(products.FieldSaleCurrency, msg)
		} else {
			currency := money.Currency(d.SaleCurrency)
			price, err := d.SalePrice.Money(currency)
			switch {
			case err != nil:
				verr.Add(products.FieldSalePrice, invalidAmount(products.FieldSalePrice, currency))
			case price.Amount.GreaterThanOrEqual(maxAmount):
				verr.Add(products.FieldSalePrice, tooLarge(products.FieldSalePrice))
			default:
				attrs.SalePrice = &price
			}
		}
	}

	if raw := strings.TrimSpace(d.ExpirationDate); raw != "" {
		date, err := products.ParseDate(raw)
		switch {
		case err != nil:
			verr.Add(products.FieldExpirationDate, "expiration_date must be a valid date")
		case !date.After(cutoff):
			verr.Add(products.FieldExpirationDate,
				"expiration_date must be after "+products.DisplayDate(cutoff))
		default:
			attrs.ExpirationDate = &date
		}
	}

	if err := verr.Err(); err != nil {
		return products.Attributes{}, err
	}
	return attrs, nil
}

// normalize trims text and upper-cases currency codes so the struct tags see
// canonical values. A blank sale price counts as absent.
func normalize(d products.Draft) products.Draft {
	d.Name = strings.TrimSpace(d.Name)
	d.Category = strings.TrimSpace(d.Category)
	d.PurchaseCurrency = strings.ToUpper(strings.TrimSpace(d.PurchaseCurrency))
	d.SaleCurrency = strings.ToUpper(strings.TrimSpace(d.SaleCurrency))
	if d.SalePrice.IsZero() {
		d.SalePrice = products.PriceInput{}
	}
	return d
}

// tagErrors runs the struct tag rules and returns one message per field.
func tagErrors(d products.Draft) map[string]string {
	var fieldErrs validator.ValidationErrors
	if err := draftValidator.Struct(d); !errors.As(err, &fieldErrs) {
		return nil
	}

	out := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		field, ok := draftFields[fe.StructField()]
		if !ok {
			continue
		}
		if _, seen := out[field]; !seen {
			out[field] = tagMessage(field, fe)
		}
	}
	return out
}

func tagMessage(field string, fe validator.FieldError) string {
	if field == products.FieldPurchaseCurrency || field == products.FieldSaleCurrency {
		return field + " must be one of " + currencyList
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gt":
		return fmt.Sprintf("%s must be > %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return field + " is invalid"
	}
}

func invalidAmount(field string, currency money.Currency) string {
	return fmt.Sprintf("%s must be a valid %s amount using %q as decimal separator",
		field, currency, currency.DecimalSeparator())
}

func tooLarge(field string) string {
	return fmt.Sprintf("%s must be less than %s", field, maxAmount.String())
}
