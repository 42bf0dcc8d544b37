package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aigualink/water-metering-worker/internal/consumption"
	"github.com/aigualink/water-metering-worker/internal/db"
	"github.com/aigualink/water-metering-worker/internal/service"
)

const testBootstrapDays = 365

func newUpdater(e *env) *service.LastReadingUpdater {
	return service.NewLastReadingUpdater(e.store, consumption.NewCalculator(testBootstrapDays), zap.NewNop())
}

func TestRecalculate_NoReadings(t *testing.T) {
	e := newEnv(envOptions{ruleType: consumption.PersonBased, ruleValue: 50, fixedPopulation: 5, floatingPopulation: 3})
	u := newUpdater(e)

	meter := e.currentMeter()
	_, err := u.Recalculate(context.Background(), nil, &meter, nil)
	if !errors.Is(err, service.ErrNoReadingsProvided) {
		t.Errorf("Expected ErrNoReadingsProvided, got %v", err)
	}
}

func TestRecalculate_MissingCommunityZone(t *testing.T) {
	e := newEnv(envOptions{ruleType: consumption.PersonBased, ruleValue: 50})
	u := newUpdater(e)

	meter := e.currentMeter()
	meter.WaterPoint.CommunityZoneID = uuid.New()
	wr := e.addReading("100", 100, daysAgo(1))

	_, err := u.Recalculate(context.Background(), nil, &meter, []db.WaterMeterReading{wr})
	if !errors.Is(err, service.ErrCommunityZoneNotFound) {
		t.Errorf("Expected ErrCommunityZoneNotFound, got %v", err)
	}
}

func TestRecalculate_MissingCommunity(t *testing.T) {
	e := newEnv(envOptions{ruleType: consumption.PersonBased, ruleValue: 50})
	u := newUpdater(e)

	// Point the zone at a community that does not exist.
	meter := e.currentMeter()
	zone := e.store.zones[meter.WaterPoint.CommunityZoneID]
	zone.CommunityID = uuid.New()
	e.store.zones[zone.ID] = zone

	wr := e.addReading("100", 100, daysAgo(1))
	_, err := u.Recalculate(context.Background(), nil, &meter, []db.WaterMeterReading{wr})
	if !errors.Is(err, service.ErrCommunityNotFound) {
		t.Errorf("Expected ErrCommunityNotFound, got %v", err)
	}
}

func TestRecalculate_FirstReadingBootstrap(t *testing.T) {
	// Population 5+3=8, person-based 50 L/day -> limit 400 L/day.
	// First-ever reading of 10000 L -> 10000/365 ~ 27.4 L/day, no excess.
	e := newEnv(envOptions{ruleType: consumption.PersonBased, ruleValue: 50, fixedPopulation: 5, floatingPopulation: 3})
	u := newUpdater(e)

	meter := e.currentMeter()
	wr := e.addReading("10000", 10000, daysAgo(1))

	updated, err := u.Recalculate(context.Background(), nil, &meter, []db.WaterMeterReading{wr})
	if err != nil {
		t.Fatalf("Recalculate failed: %v", err)
	}

	if updated.LastReadingValue == nil || !updated.LastReadingValue.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("Expected cached value 10000, got %v", updated.LastReadingValue)
	}
	if updated.LastReadingDate == nil || !updated.LastReadingDate.Equal(wr.ReadingDate) {
		t.Errorf("Expected cached date %v, got %v", wr.ReadingDate, updated.LastReadingDate)
	}
	if updated.LastReadingExcess == nil || *updated.LastReadingExcess {
		t.Error("Expected no excess consumption for bootstrap reading")
	}

	persisted := e.currentMeter()
	if persisted.LastReadingValue == nil || !persisted.LastReadingValue.Equal(decimal.NewFromInt(10000)) {
		t.Error("Expected cache to be persisted on the stored meter")
	}
}

func TestRecalculate_IntervalExcess(t *testing.T) {
	// Last two readings 1000 L (10 days ago) and 18000 L (today);
	// person-based 100 L/day, population 15 -> limit 1500 L/day.
	// 18000/10 = 1800 > 1500 -> excess.
	e := newEnv(envOptions{ruleType: consumption.PersonBased, ruleValue: 100, fixedPopulation: 15})
	u := newUpdater(e)

	meter := e.currentMeter()
	older := e.addReading("1000", 1000, daysAgo(10))
	latest := e.addReading("18000", 18000, daysAgo(0))

	updated, err := u.Recalculate(context.Background(), nil, &meter, []db.WaterMeterReading{older, latest})
	if err != nil {
		t.Fatalf("Recalculate failed: %v", err)
	}
	if updated.LastReadingExcess == nil || !*updated.LastReadingExcess {
		t.Error("Expected excess consumption at 1800 L/day against a 1500 L/day limit")
	}
	if !updated.LastReadingValue.Equal(decimal.NewFromInt(18000)) {
		t.Errorf("Expected cached value 18000, got %v", updated.LastReadingValue)
	}
}

func TestRecalculate_IntervalAtLimitIsNotExcess(t *testing.T) {
	// 15000/10 = 1500 L/day, exactly the limit. Equality is not excess.
	e := newEnv(envOptions{ruleType: consumption.PersonBased, ruleValue: 100, fixedPopulation: 15})
	u := newUpdater(e)

	meter := e.currentMeter()
	older := e.addReading("1000", 1000, daysAgo(10))
	latest := e.addReading("15000", 15000, daysAgo(0))

	updated, err := u.Recalculate(context.Background(), nil, &meter, []db.WaterMeterReading{older, latest})
	if err != nil {
		t.Fatalf("Recalculate failed: %v", err)
	}
	if updated.LastReadingExcess == nil || *updated.LastReadingExcess {
		t.Error("Expected no excess consumption exactly at the limit")
	}
}

func TestRecalculate_HouseholdRuleIgnoresPopulation(t *testing.T) {
	// Household-based 1000 L/day with a huge population still limits at
	// 1000; 18000/10 = 1800 -> excess.
	e := newEnv(envOptions{ruleType: consumption.HouseholdBased, ruleValue: 1000, fixedPopulation: 500})
	u := newUpdater(e)

	meter := e.currentMeter()
	older := e.addReading("1000", 1000, daysAgo(10))
	latest := e.addReading("18000", 18000, daysAgo(0))

	updated, err := u.Recalculate(context.Background(), nil, &meter, []db.WaterMeterReading{older, latest})
	if err != nil {
		t.Fatalf("Recalculate failed: %v", err)
	}
	if updated.LastReadingExcess == nil || !*updated.LastReadingExcess {
		t.Error("Expected excess under household rule regardless of population")
	}
}

func TestRecalculate_NonPositiveInterval(t *testing.T) {
	e := newEnv(envOptions{ruleType: consumption.PersonBased, ruleValue: 100, fixedPopulation: 15})
	u := newUpdater(e)

	meter := e.currentMeter()
	base := time.Now().Add(-6 * time.Hour)
	older := e.addReading("1000", 1000, base)
	latest := e.addReading("2000", 2000, base.Add(2*time.Hour))

	_, err := u.Recalculate(context.Background(), nil, &meter, []db.WaterMeterReading{older, latest})
	if !errors.Is(err, service.ErrNonPositiveInterval) {
		t.Errorf("Expected ErrNonPositiveInterval for same-day readings, got %v", err)
	}
}

func TestRecalculate_SortsSuppliedReadings(t *testing.T) {
	// Readings passed newest-first or oldest-first must produce the same
	// cache.
	e := newEnv(envOptions{ruleType: consumption.PersonBased, ruleValue: 100, fixedPopulation: 15})
	u := newUpdater(e)

	meter := e.currentMeter()
	older := e.addReading("1000", 1000, daysAgo(10))
	latest := e.addReading("18000", 18000, daysAgo(0))

	updated, err := u.Recalculate(context.Background(), nil, &meter, []db.WaterMeterReading{latest, older})
	if err != nil {
		t.Fatalf("Recalculate failed: %v", err)
	}
	if !updated.LastReadingValue.Equal(decimal.NewFromInt(18000)) {
		t.Errorf("Expected latest reading to win regardless of input order, got %v", updated.LastReadingValue)
	}
}

func TestClearLastReading(t *testing.T) {
	e := newEnv(envOptions{ruleType: consumption.PersonBased, ruleValue: 50, fixedPopulation: 2})
	u := newUpdater(e)

	meter := e.currentMeter()
	value := decimal.NewFromInt(500)
	date := daysAgo(3)
	excess := false
	meter.LastReadingValue = &value
	meter.LastReadingDate = &date
	meter.LastReadingExcess = &excess

	if err := u.ClearLastReading(context.Background(), nil, &meter); err != nil {
		t.Fatalf("ClearLastReading failed: %v", err)
	}

	persisted := e.currentMeter()
	if persisted.LastReadingValue != nil || persisted.LastReadingDate != nil || persisted.LastReadingExcess != nil {
		t.Error("Expected all three cache fields cleared together")
	}
}
