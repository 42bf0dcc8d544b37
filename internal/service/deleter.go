package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aigualink/water-metering-worker/internal/db"
	"github.com/aigualink/water-metering-worker/internal/storage"
)

// DeleteReadingResult reports the meter state after the deletion and the
// outcome of the best-effort image cleanup.
type DeleteReadingResult struct {
	Meter *db.WaterMeter

	ImageDeleteFailed bool
	ImageError        string
}

// ReadingDeleter removes the single most recent reading of a meter.
// Deleting interior history would invalidate the ordering invariant, so
// anything older is rejected.
type ReadingDeleter struct {
	store   Store
	updater *LastReadingUpdater
	files   storage.Store
	logger  *zap.Logger
}

// NewReadingDeleter creates a new reading deleter.
func NewReadingDeleter(store Store, updater *LastReadingUpdater, files storage.Store, logger *zap.Logger) *ReadingDeleter {
	return &ReadingDeleter{store: store, updater: updater, files: files, logger: logger}
}

// Delete removes a reading and re-derives the meter cache from whatever
// remains, clearing it when the log empties.
func (d *ReadingDeleter) Delete(ctx context.Context, readingID uuid.UUID) (*DeleteReadingResult, error) {
	tx, err := d.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	reading, err := d.store.GetReading(ctx, tx, readingID)
	if err != nil {
		return nil, err
	}
	if reading == nil {
		return nil, ErrReadingNotFound
	}

	meter, err := d.store.GetWaterMeter(ctx, tx, reading.WaterMeterID)
	if err != nil {
		return nil, err
	}
	if meter == nil {
		return nil, ErrMeterNotFound
	}

	recent, err := d.store.MostRecentReadings(ctx, tx, meter.ID, 1)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 || recent[0].ID != reading.ID {
		return nil, ErrNotMostRecentReading
	}

	result := &DeleteReadingResult{}

	image, err := d.store.GetReadingImage(ctx, tx, reading.ID)
	if err != nil {
		return nil, err
	}
	if image != nil {
		if err := d.files.Delete(ctx, image.ExternalKey); err != nil {
			d.logger.Warn("reading image blob delete failed",
				zap.Error(err),
				zap.String("reading_id", reading.ID.String()),
			)
			result.ImageDeleteFailed = true
			result.ImageError = err.Error()
		}
		if err := d.store.DeleteReadingImage(ctx, tx, image.ID); err != nil {
			return nil, err
		}
	}

	if err := d.store.DeleteReading(ctx, tx, reading.ID); err != nil {
		return nil, err
	}

	remaining, err := d.store.MostRecentReadings(ctx, tx, meter.ID, 2)
	if err != nil {
		return nil, err
	}
	if len(remaining) > 0 {
		meter, err = d.updater.Recalculate(ctx, tx, meter, remaining)
		if err != nil {
			return nil, err
		}
	} else {
		if err := d.updater.ClearLastReading(ctx, tx, meter); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	result.Meter = meter
	return result, nil
}
