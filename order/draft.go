package order

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"orderdesk/model"
)

const DefaultMaxNoteLength = 250

var hundred = decimal.NewFromInt(100)

// LineInput is one requested line item. UnitPrice already includes any
// priced extras.
type LineInput struct {
	Category  string          `json:"category"`
	Product   string          `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Extras    model.Extras    `json:"extras"`
	Note      string          `json:"note"`
}

// Draft is everything needed to save an order for an existing customer.
type Draft struct {
	CustomerID      int64
	IsPickup        bool
	CourierID       *int64
	Note            string
	RequestedTime   string
	DiscountPercent decimal.Decimal
	Lines           []LineInput
}

// Totals are the money fields of an order header.
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	Total          decimal.Decimal `json:"total"`
}

// ComputeTotals sums quantity × unit price and applies the discount rounded
// half-up to cents.
func ComputeTotals(lines []LineInput, discountPercent decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	discount := subtotal.Mul(discountPercent).Div(hundred).Round(2)
	return Totals{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		Total:          subtotal.Sub(discount).Round(2),
	}
}

// Validate rejects a draft on the first problem found.
func Validate(d Draft, maxNoteLength int) error {
	if maxNoteLength <= 0 {
		maxNoteLength = DefaultMaxNoteLength
	}
	if d.CustomerID <= 0 {
		return model.Validationf("order has no customer")
	}
	if len(d.Lines) == 0 {
		return model.Validationf("order has no line items")
	}
	for i, l := range d.Lines {
		n := i + 1
		if strings.TrimSpace(l.Category) == "" || strings.TrimSpace(l.Product) == "" {
			return model.Validationf("line %d: category and product are required", n)
		}
		if l.Quantity < 1 {
			return model.Validationf("line %d (%s): quantity must be at least 1", n, l.Product)
		}
		if l.UnitPrice.IsNegative() {
			return model.Validationf("line %d (%s): unit price must not be negative", n, l.Product)
		}
		if !l.UnitPrice.Equal(l.UnitPrice.Round(2)) {
			return model.Validationf("line %d (%s): unit price %s has fractions of a cent", n, l.Product, l.UnitPrice)
		}
		if utf8.RuneCountInString(l.Note) > maxNoteLength {
			return model.Validationf("line %d (%s): note exceeds %d characters", n, l.Product, maxNoteLength)
		}
	}
	if d.DiscountPercent.IsNegative() || d.DiscountPercent.GreaterThan(hundred) {
		return model.Validationf("discount must be between 0 and 100 percent")
	}
	if utf8.RuneCountInString(d.Note) > maxNoteLength {
		return model.Validationf("note exceeds %d characters", maxNoteLength)
	}
	if d.RequestedTime != "" {
		if _, err := ParseRequestedTime(d.RequestedTime); err != nil {
			return err
		}
	}
	if d.IsPickup && d.CourierID != nil {
		return model.Validationf("pickup orders have no courier")
	}
	if !ComputeTotals(d.Lines, d.DiscountPercent).Subtotal.IsPositive() {
		return model.Validationf("order subtotal must be greater than zero")
	}
	return nil
}

// ParseRequestedTime accepts HH:MM or HH:MM:SS and returns HH:MM.
func ParseRequestedTime(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("15:04"), nil
		}
	}
	return "", model.Validationf("requested time %q is not HH:MM", s)
}
