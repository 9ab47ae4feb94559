package foreignassets

import (
	"github.com/etnz/foreignassets/date"
	"github.com/shopspring/decimal"
)

// VestEvent is a grant of shares of Symbol on Date.
//
// When Override is set, its value is the acquisition price of the shares
// instead of the market close of that day.
type VestEvent struct {
	Symbol   string
	Date     date.Date
	Quantity Quantity
	Override *decimal.Decimal
}

// NewVest returns a VestEvent without price override.
func NewVest(symbol string, on date.Date, quantity int) VestEvent {
	return VestEvent{Symbol: symbol, Date: on, Quantity: Q(quantity)}
}

// WithOverride returns a copy of v with the acquisition price set to price.
func (v VestEvent) WithOverride(price decimal.Decimal) VestEvent {
	v.Override = &price
	return v
}

// SellEvent is the sale of Quantity shares of Symbol on Date, at UnitPrice
// per share, expressed in the security currency.
type SellEvent struct {
	Symbol    string
	Date      date.Date
	Quantity  Quantity
	UnitPrice decimal.Decimal

	// PurchaseDate is kept when read from files but plays no role in matching.
	PurchaseDate date.Date
}

// NewSell returns a SellEvent.
func NewSell(symbol string, on date.Date, quantity int, unitPrice float64) SellEvent {
	return SellEvent{Symbol: symbol, Date: on, Quantity: Q(quantity), UnitPrice: decimal.NewFromFloat(unitPrice)}
}

// validateQuantity checks that q is a strictly positive whole number of shares.
func validateQuantity(symbol string, on date.Date, q Quantity) error {
	switch {
	case !q.IsPositive():
		return &InvalidEventError{Symbol: symbol, Date: on, Reason: "quantity must be positive, got " + q.String()}
	case !q.IsInteger():
		return &InvalidEventError{Symbol: symbol, Date: on, Reason: "quantity must be a whole number of shares, got " + q.String()}
	}
	return nil
}

// Validate checks that v is well formed.
func (v VestEvent) Validate() error {
	if v.Symbol == "" {
		return &InvalidEventError{Date: v.Date, Reason: "vest symbol is missing"}
	}
	if v.Date.IsZero() {
		return &InvalidEventError{Symbol: v.Symbol, Reason: "vest date is missing"}
	}
	if v.Override != nil && v.Override.IsNegative() {
		return &InvalidEventError{Symbol: v.Symbol, Date: v.Date, Reason: "vest price cannot be negative"}
	}
	return validateQuantity(v.Symbol, v.Date, v.Quantity)
}

// Validate checks that s is well formed.
func (s SellEvent) Validate() error {
	if s.Symbol == "" {
		return &InvalidEventError{Date: s.Date, Reason: "sale symbol is missing"}
	}
	if s.Date.IsZero() {
		return &InvalidEventError{Symbol: s.Symbol, Reason: "sale date is missing"}
	}
	if s.UnitPrice.IsNegative() {
		return &InvalidEventError{Symbol: s.Symbol, Date: s.Date, Reason: "sale price cannot be negative"}
	}
	return validateQuantity(s.Symbol, s.Date, s.Quantity)
}
