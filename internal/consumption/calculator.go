package consumption

import (
	"time"

	"github.com/shopspring/decimal"
)

// RuleType is the shape of a community's consumption limit rule.
type RuleType string

const (
	// PersonBased limits are per person per day, scaled by the water
	// point's population.
	PersonBased RuleType = "PERSON_BASED"
	// HouseholdBased limits are a flat liters-per-day figure regardless
	// of population.
	HouseholdBased RuleType = "HOUSEHOLD_BASED"
)

// Calculator computes daily consumption rates and community limits.
// All values are liters.
type Calculator struct {
	bootstrapDays int64
}

// NewCalculator creates a calculator. bootstrapDays is the amortization
// window applied to the first-ever reading of a meter.
func NewCalculator(bootstrapDays int) *Calculator {
	return &Calculator{bootstrapDays: int64(bootstrapDays)}
}

// DailyLimit resolves the applicable liters-per-day limit for a water point.
// Person-based rules multiply by total population; household-based rules
// ignore it.
func (c *Calculator) DailyLimit(ruleType RuleType, ruleValue decimal.Decimal, fixedPopulation, floatingPopulation int) decimal.Decimal {
	if ruleType == PersonBased {
		return ruleValue.Mul(decimal.NewFromInt(int64(fixedPopulation + floatingPopulation)))
	}
	return ruleValue
}

// BootstrapRate amortizes the first-ever reading of a meter over the
// configured window.
func (c *Calculator) BootstrapRate(normalized decimal.Decimal) decimal.Decimal {
	return normalized.Div(decimal.NewFromInt(c.bootstrapDays))
}

// IntervalRate divides the latest normalized reading by the day interval
// to the previous one. The absolute reading is used, not the delta between
// readings.
func (c *Calculator) IntervalRate(normalized decimal.Decimal, days int) decimal.Decimal {
	return normalized.Div(decimal.NewFromInt(int64(days)))
}

// IsExcess reports whether a daily rate strictly exceeds the limit.
// Equality is not excess.
func (c *Calculator) IsExcess(rate, limit decimal.Decimal) bool {
	return rate.GreaterThan(limit)
}

// DaysBetween returns the whole number of days from previous to latest,
// truncated. Readings on the same day yield 0.
func DaysBetween(latest, previous time.Time) int {
	return int(latest.Sub(previous) / (24 * time.Hour))
}
