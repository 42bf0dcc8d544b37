package measurement

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Unit is the declared measurement unit of a water meter.
type Unit string

const (
	Liters      Unit = "L"
	CubicMeters Unit = "M3"
)

// ErrInvalidUnit is returned when a unit string is not L or M3.
var ErrInvalidUnit = errors.New("invalid measurement unit")

// ErrInvalidReading is returned when a raw reading is not a valid decimal.
var ErrInvalidReading = errors.New("invalid reading value")

var litersPerCubicMeter = decimal.NewFromInt(1000)

// ParseUnit validates a raw unit string.
func ParseUnit(s string) (Unit, error) {
	switch Unit(s) {
	case Liters, CubicMeters:
		return Unit(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidUnit, s)
}

// Normalize converts a raw reading in this unit to liters.
func (u Unit) Normalize(raw decimal.Decimal) decimal.Decimal {
	if u == CubicMeters {
		return raw.Mul(litersPerCubicMeter)
	}
	return raw
}

// NormalizeString parses the exact decimal raw value and converts it to liters.
func (u Unit) NormalizeString(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidReading, raw)
	}
	return u.Normalize(d), nil
}
