package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aigualink/water-metering-worker/internal/db"
	"github.com/aigualink/water-metering-worker/internal/storage"
)

// readingImageFolder is the blob folder evidence photos are uploaded to.
const readingImageFolder = "water-meter-readings"

// CreateReadingInput is the input of ReadingCreator.Create.
type CreateReadingInput struct {
	WaterMeterID uuid.UUID
	Reading      string
	ReadingDate  *time.Time
	Notes        *string
	Image        *ImageUpload
}

// CreateReadingResult reports the persisted reading and meter plus the
// outcome of the optional image upload. An upload failure never fails the
// operation.
type CreateReadingResult struct {
	Reading *db.WaterMeterReading
	Meter   *db.WaterMeter

	ImageUploadFailed bool
	ImageError        string
}

// ReadingCreator validates and appends readings to a meter's log.
type ReadingCreator struct {
	store   Store
	updater *LastReadingUpdater
	files   storage.Store
	logger  *zap.Logger
}

// NewReadingCreator creates a new reading creator.
func NewReadingCreator(store Store, updater *LastReadingUpdater, files storage.Store, logger *zap.Logger) *ReadingCreator {
	return &ReadingCreator{store: store, updater: updater, files: files, logger: logger}
}

// Create appends a new reading and recomputes the meter's last-reading
// cache in one transaction. Dates must strictly increase and normalized
// values must never decrease across the meter's log.
func (c *ReadingCreator) Create(ctx context.Context, in CreateReadingInput) (*CreateReadingResult, error) {
	now := time.Now()
	date := now
	if in.ReadingDate != nil {
		date = *in.ReadingDate
	}
	if date.After(now) {
		return nil, ErrReadingDateNotAllowed
	}

	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	meter, err := c.store.GetWaterMeter(ctx, tx, in.WaterMeterID)
	if err != nil {
		return nil, err
	}
	if meter == nil {
		return nil, ErrMeterNotFound
	}

	normalized, err := meter.Unit.NormalizeString(in.Reading)
	if err != nil {
		return nil, err
	}

	recent, err := c.store.MostRecentReadings(ctx, tx, meter.ID, 1)
	if err != nil {
		return nil, err
	}
	if len(recent) > 0 {
		last := recent[0]
		if !date.After(last.ReadingDate) {
			return nil, ErrReadingNotAllowed
		}
		if normalized.LessThan(last.NormalizedReading) {
			return nil, ErrReadingNotAllowed
		}
	}

	reading := &db.WaterMeterReading{
		ID:                uuid.New(),
		WaterMeterID:      meter.ID,
		Reading:           in.Reading,
		NormalizedReading: normalized,
		ReadingDate:       date,
		Notes:             in.Notes,
		CreatedAt:         now,
	}
	if err := c.store.InsertReading(ctx, tx, reading); err != nil {
		return nil, err
	}

	meter, err = c.updater.Recalculate(ctx, tx, meter, append(recent, *reading))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	result := &CreateReadingResult{Reading: reading, Meter: meter}
	if in.Image != nil {
		c.attachImage(ctx, reading, *in.Image, result)
	}
	return result, nil
}

// attachImage uploads the evidence photo and records it against the
// reading. The reading is already committed; failures are reported on the
// result only.
func (c *ReadingCreator) attachImage(ctx context.Context, reading *db.WaterMeterReading, img ImageUpload, result *CreateReadingResult) {
	uploaded, err := c.files.Upload(ctx, img.Data, storage.Metadata{
		FileName: img.FileName,
		MimeType: img.MimeType,
	}, reading.ID, readingImageFolder)
	if err != nil {
		c.logger.Warn("reading image upload failed",
			zap.Error(err),
			zap.String("reading_id", reading.ID.String()),
		)
		result.ImageUploadFailed = true
		result.ImageError = err.Error()
		return
	}

	record := &db.WaterMeterReadingImage{
		ID:                  uuid.New(),
		WaterMeterReadingID: reading.ID,
		URL:                 uploaded.URL,
		FileName:            img.FileName,
		FileSize:            int64(len(img.Data)),
		MimeType:            img.MimeType,
		ExternalKey:         uploaded.ExternalKey,
		UploadedAt:          time.Now(),
	}
	if err := c.store.InsertReadingImage(ctx, nil, record); err != nil {
		c.logger.Warn("failed to record reading image",
			zap.Error(err),
			zap.String("reading_id", reading.ID.String()),
		)
		result.ImageUploadFailed = true
		result.ImageError = err.Error()
	}
}
