package consumption_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aigualink/water-metering-worker/internal/consumption"
)

const testBootstrapDays = 365

func TestDailyLimit_PersonBased(t *testing.T) {
	calc := consumption.NewCalculator(testBootstrapDays)

	limit := calc.DailyLimit(consumption.PersonBased, decimal.NewFromInt(50), 5, 3)
	if !limit.Equal(decimal.NewFromInt(400)) {
		t.Errorf("Expected 50 x (5+3) = 400, got %v", limit)
	}
}

func TestDailyLimit_HouseholdBasedIgnoresPopulation(t *testing.T) {
	calc := consumption.NewCalculator(testBootstrapDays)

	limit := calc.DailyLimit(consumption.HouseholdBased, decimal.NewFromInt(1000), 500, 250)
	if !limit.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Expected flat 1000 regardless of population, got %v", limit)
	}
}

func TestBootstrapRate(t *testing.T) {
	calc := consumption.NewCalculator(testBootstrapDays)

	rate := calc.BootstrapRate(decimal.NewFromInt(10000))
	// 10000/365 ~ 27.4 L/day
	if rate.LessThan(decimal.RequireFromString("27.39")) || rate.GreaterThan(decimal.RequireFromString("27.40")) {
		t.Errorf("Expected ~27.4, got %v", rate)
	}
}

func TestIntervalRate(t *testing.T) {
	calc := consumption.NewCalculator(testBootstrapDays)

	rate := calc.IntervalRate(decimal.NewFromInt(18000), 10)
	if !rate.Equal(decimal.NewFromInt(1800)) {
		t.Errorf("Expected 1800, got %v", rate)
	}
}

func TestIsExcess_StrictComparison(t *testing.T) {
	calc := consumption.NewCalculator(testBootstrapDays)
	limit := decimal.NewFromInt(1500)

	if !calc.IsExcess(decimal.NewFromInt(1800), limit) {
		t.Error("Expected 1800 > 1500 to be excess")
	}
	if calc.IsExcess(decimal.NewFromInt(1500), limit) {
		t.Error("Expected equality not to be excess")
	}
	if calc.IsExcess(decimal.RequireFromString("1499.999"), limit) {
		t.Error("Expected 1499.999 not to be excess")
	}
}

func TestDaysBetween_TruncatesToWholeDays(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	if d := consumption.DaysBetween(now, now.Add(-10*24*time.Hour)); d != 10 {
		t.Errorf("Expected 10 days, got %d", d)
	}
	// 9 days and 23 hours truncate to 9.
	if d := consumption.DaysBetween(now, now.Add(-9*24*time.Hour-23*time.Hour)); d != 9 {
		t.Errorf("Expected truncation to 9 days, got %d", d)
	}
	// Same day: hours apart is 0 days.
	if d := consumption.DaysBetween(now, now.Add(-5*time.Hour)); d != 0 {
		t.Errorf("Expected 0 days for readings hours apart, got %d", d)
	}
	// Inverted order goes negative.
	if d := consumption.DaysBetween(now, now.Add(24*time.Hour)); d != -1 {
		t.Errorf("Expected -1 day for inverted readings, got %d", d)
	}
}
