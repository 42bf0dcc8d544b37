package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aigualink/water-metering-worker/internal/consumption"
	"github.com/aigualink/water-metering-worker/internal/db"
)

// LastReadingUpdater recomputes the denormalized last-reading cache of a
// meter from its most recent readings. It is the only writer of the cache;
// every reading mutation routes through it (or through ClearLastReading
// when the log empties).
type LastReadingUpdater struct {
	store  Store
	calc   *consumption.Calculator
	logger *zap.Logger
}

// NewLastReadingUpdater creates a new last-reading updater.
func NewLastReadingUpdater(store Store, calc *consumption.Calculator, logger *zap.Logger) *LastReadingUpdater {
	return &LastReadingUpdater{store: store, calc: calc, logger: logger}
}

// Recalculate derives and persists the cache from up to two readings of
// the meter, expected to be its two most recent. The meter is mutated in
// place and returned.
func (u *LastReadingUpdater) Recalculate(ctx context.Context, tx Tx, meter *db.WaterMeter, readings []db.WaterMeterReading) (*db.WaterMeter, error) {
	if len(readings) == 0 {
		return nil, ErrNoReadingsProvided
	}

	sorted := make([]db.WaterMeterReading, len(readings))
	copy(sorted, readings)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ReadingDate.After(sorted[j].ReadingDate)
	})

	latest := sorted[0]
	var secondLatest *db.WaterMeterReading
	if len(sorted) > 1 {
		secondLatest = &sorted[1]
	}

	zone, err := u.store.GetCommunityZone(ctx, tx, meter.WaterPoint.CommunityZoneID)
	if err != nil {
		return nil, err
	}
	if zone == nil {
		return nil, fmt.Errorf("%w: %s", ErrCommunityZoneNotFound, meter.WaterPoint.CommunityZoneID)
	}

	community, err := u.store.GetCommunity(ctx, tx, zone.CommunityID)
	if err != nil {
		return nil, err
	}
	if community == nil {
		return nil, fmt.Errorf("%w: %s", ErrCommunityNotFound, zone.CommunityID)
	}

	limit := u.calc.DailyLimit(
		community.RuleType,
		community.RuleValue,
		meter.WaterPoint.FixedPopulation,
		meter.WaterPoint.FloatingPopulation,
	)

	var rate decimal.Decimal
	if secondLatest == nil {
		// First-ever reading: amortize over the configured window.
		rate = u.calc.BootstrapRate(latest.NormalizedReading)
	} else {
		days := consumption.DaysBetween(latest.ReadingDate, secondLatest.ReadingDate)
		if days <= 0 {
			return nil, fmt.Errorf("%w: %d days between readings", ErrNonPositiveInterval, days)
		}
		rate = u.calc.IntervalRate(latest.NormalizedReading, days)
	}

	excess := u.calc.IsExcess(rate, limit)
	value := latest.NormalizedReading
	date := latest.ReadingDate

	meter.LastReadingValue = &value
	meter.LastReadingDate = &date
	meter.LastReadingExcess = &excess

	if err := u.store.SaveWaterMeter(ctx, tx, meter); err != nil {
		return nil, err
	}

	u.logger.Debug("recalculated last reading",
		zap.String("water_meter_id", meter.ID.String()),
		zap.String("daily_consumption", rate.String()),
		zap.String("daily_limit", limit.String()),
		zap.Bool("excess_consumption", excess),
	)

	return meter, nil
}

// ClearLastReading nulls the cache triple when no readings remain on the
// meter.
func (u *LastReadingUpdater) ClearLastReading(ctx context.Context, tx Tx, meter *db.WaterMeter) error {
	meter.LastReadingValue = nil
	meter.LastReadingDate = nil
	meter.LastReadingExcess = nil

	if err := u.store.SaveWaterMeter(ctx, tx, meter); err != nil {
		return err
	}

	u.logger.Debug("cleared last reading cache",
		zap.String("water_meter_id", meter.ID.String()),
	)
	return nil
}
