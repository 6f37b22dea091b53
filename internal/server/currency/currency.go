// Package currency converts amounts between the network's base unit
// (millisatoshi) and settlement currencies described by a multiplier.
package currency

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// SATCode is the network's native settlement unit.
const SATCode = "SAT"

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrBelowMinimum  = errors.New("amount below minimum")
	ErrAboveMaximum  = errors.New("amount above maximum")
)

// Descriptor describes a settlement currency. Multiplier is the number of
// millisatoshis per smallest unit of the currency; MinSendable and
// MaxSendable are expressed in that smallest unit.
type Descriptor struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Symbol      string  `json:"symbol"`
	Multiplier  float64 `json:"multiplier"`
	Decimals    int     `json:"decimals"`
	MinSendable int64   `json:"minSendable"`
	MaxSendable int64   `json:"maxSendable"`
}

// SAT is the default descriptor used when a user has no preferences or a
// counterparty offers no currencies.
var SAT = Descriptor{
	Code:        SATCode,
	Name:        "Satoshis",
	Symbol:      "",
	Multiplier:  1000,
	Decimals:    0,
	MinSendable: 1,
	MaxSendable: 10_000_000_000,
}

// ParseAmount parses a strictly positive decimal amount.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %q must be positive", ErrInvalidAmount, s)
	}
	return d, nil
}

// ToBase converts an amount in the currency's smallest unit to millisatoshis,
// rounding half away from zero.
func ToBase(amount decimal.Decimal, multiplier float64) int64 {
	return amount.Mul(decimal.NewFromFloat(multiplier)).Round(0).IntPart()
}

// FromBase converts millisatoshis back into the currency's smallest unit.
func FromBase(base int64, multiplier float64) decimal.Decimal {
	m := decimal.NewFromFloat(multiplier)
	if m.IsZero() {
		return decimal.Zero
	}
	return decimal.NewFromInt(base).Div(m)
}

// FromBaseRounded is FromBase rounded to a whole smallest unit.
func FromBaseRounded(base int64, multiplier float64) int64 {
	return FromBase(base, multiplier).Round(0).IntPart()
}

// WithinBounds checks amount (in the currency's smallest unit) against the
// descriptor's sendable range. A zero MaxSendable means unbounded.
func WithinBounds(amount int64, d Descriptor) error {
	if amount < d.MinSendable {
		return fmt.Errorf("%w: minimum amount is %d %s", ErrBelowMinimum, d.MinSendable, d.Code)
	}
	if d.MaxSendable > 0 && amount > d.MaxSendable {
		return fmt.Errorf("%w: maximum amount is %d %s", ErrAboveMaximum, d.MaxSendable, d.Code)
	}
	return nil
}

// Find returns the descriptor with the given code.
func Find(list []Descriptor, code string) (Descriptor, bool) {
	for _, d := range list {
		if d.Code == code {
			return d, true
		}
	}
	return Descriptor{}, false
}

// OrDefault returns list, or a single SAT descriptor when list is empty.
func OrDefault(list []Descriptor) []Descriptor {
	if len(list) == 0 {
		return []Descriptor{SAT}
	}
	return list
}
