// Package money keeps the core specified entirely in integer cents
// (spec.md §9 design note). Decimal values appear in conversion at the
// external interface boundary, where wire payloads or collaborator
// APIs deal in decimal currency amounts, and inside ApplyBasisPoints
// for the rounded rate multiplication; every result is returned as
// Cents.
package money

import "github.com/shopspring/decimal" // boundary conversion and ApplyBasisPoints rounding; results stay in Cents

// Cents is an integer amount of US-cent-equivalent minor currency
// units. All core arithmetic (subtotal, tax, shipping, total) happens
// in Cents to avoid floating-point drift.
type Cents int64

// FromDecimal converts a decimal currency amount (as received from an
// external collaborator, e.g. the shipping calculator's quoted cost)
// into Cents, rounding to the nearest cent.
func FromDecimal(d decimal.Decimal) Cents {
	return Cents(d.Mul(decimal.NewFromInt(100)).Round(0).IntPart())
}

// ToDecimal converts Cents back into a decimal currency amount for
// presentation at the external boundary (e.g. an encrypted payment
// receipt, a controller response DTO).
func (c Cents) ToDecimal() decimal.Decimal {
	return decimal.NewFromInt(int64(c)).Div(decimal.NewFromInt(100))
}

// ApplyBasisPoints computes c * bps / 10000, rounding half up. Used for
// tax_rate (spec.md §4.D default 825 = 8.25%).
func (c Cents) ApplyBasisPoints(bps int64) Cents {
	d := decimal.NewFromInt(int64(c)).Mul(decimal.NewFromInt(bps)).Div(decimal.NewFromInt(10000))
	return Cents(d.Round(0).IntPart())
}
