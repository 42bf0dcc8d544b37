package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aigualink/water-metering-worker/internal/db"
	"github.com/aigualink/water-metering-worker/internal/measurement"
	"github.com/aigualink/water-metering-worker/internal/storage"
)

// meterImageFolder is the blob folder device photos are uploaded to.
const meterImageFolder = "water-meters"

// Notes stamped on the readings a replacement generates.
const (
	finalReadingNote     = "Final reading before meter replacement"
	bootstrapReadingNote = "Initial reading after meter installation"
)

// ReplaceMeterInput is the input of WaterMeterReplacer.Replace.
type ReplaceMeterInput struct {
	WaterMeterID    uuid.UUID
	NewName         string
	NewUnit         measurement.Unit
	ReplacementDate *time.Time
	FinalReading    *string
	Photo           *ImageUpload
}

// ReplaceMeterResult summarizes which replacement steps succeeded.
type ReplaceMeterResult struct {
	OldMeter *db.WaterMeter
	NewMeter *db.WaterMeter

	FinalReadingRecorded bool
	BootstrapReading     *db.WaterMeterReading

	PhotoUploadFailed bool
	PhotoError        string
}

// WaterMeterReplacer decommissions a meter and installs a new one at the
// same water point.
type WaterMeterReplacer struct {
	store   Store
	creator *ReadingCreator
	files   storage.Store
	logger  *zap.Logger
}

// NewWaterMeterReplacer creates a new meter replacer.
func NewWaterMeterReplacer(store Store, creator *ReadingCreator, files storage.Store, logger *zap.Logger) *WaterMeterReplacer {
	return &WaterMeterReplacer{store: store, creator: creator, files: files, logger: logger}
}

// Replace closes out the old meter with an optional final reading,
// deactivates it, and bootstraps a new meter at the same water point with
// a zero reading.
func (r *WaterMeterReplacer) Replace(ctx context.Context, in ReplaceMeterInput) (*ReplaceMeterResult, error) {
	now := time.Now()
	date := now
	if in.ReplacementDate != nil {
		date = *in.ReplacementDate
	}
	if date.After(now) {
		return nil, ErrReadingDateNotAllowed
	}

	old, err := r.store.GetWaterMeter(ctx, nil, in.WaterMeterID)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, ErrMeterNotFound
	}
	if !old.Active {
		return nil, ErrMeterInactive
	}

	result := &ReplaceMeterResult{}

	if in.FinalReading != nil {
		note := finalReadingNote
		if _, err := r.creator.Create(ctx, CreateReadingInput{
			WaterMeterID: old.ID,
			Reading:      *in.FinalReading,
			ReadingDate:  &date,
			Notes:        &note,
		}); err != nil {
			return nil, err
		}
		result.FinalReadingRecorded = true
	}

	tx, err := r.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Re-read inside the transaction: the row may have moved since the
	// lookup above (the final reading, or a reading committed concurrently),
	// and saving that earlier copy would overwrite its cache.
	old, err = r.store.GetWaterMeter(ctx, tx, in.WaterMeterID)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, ErrMeterNotFound
	}

	old.Active = false
	if err := r.store.SaveWaterMeter(ctx, tx, old); err != nil {
		return nil, err
	}

	replacement := &db.WaterMeter{
		ID:             uuid.New(),
		WaterAccountID: old.WaterAccountID,
		Name:           in.NewName,
		Unit:           in.NewUnit,
		WaterPoint:     old.WaterPoint,
		Active:         true,
		CreatedAt:      now,
	}
	if err := r.store.InsertWaterMeter(ctx, tx, replacement); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	result.OldMeter = old
	result.NewMeter = replacement

	if in.Photo != nil {
		r.attachPhoto(ctx, replacement, *in.Photo, result)
	}

	note := bootstrapReadingNote
	bootstrap, err := r.creator.Create(ctx, CreateReadingInput{
		WaterMeterID: replacement.ID,
		Reading:      "0",
		ReadingDate:  &date,
		Notes:        &note,
	})
	if err != nil {
		return nil, err
	}
	result.BootstrapReading = bootstrap.Reading
	result.NewMeter = bootstrap.Meter

	r.logger.Info("water meter replaced",
		zap.String("old_meter_id", old.ID.String()),
		zap.String("new_meter_id", replacement.ID.String()),
		zap.Bool("final_reading_recorded", result.FinalReadingRecorded),
	)

	return result, nil
}

func (r *WaterMeterReplacer) attachPhoto(ctx context.Context, meter *db.WaterMeter, photo ImageUpload, result *ReplaceMeterResult) {
	uploaded, err := r.files.Upload(ctx, photo.Data, storage.Metadata{
		FileName: photo.FileName,
		MimeType: photo.MimeType,
	}, meter.ID, meterImageFolder)
	if err != nil {
		r.logger.Warn("meter photo upload failed",
			zap.Error(err),
			zap.String("water_meter_id", meter.ID.String()),
		)
		result.PhotoUploadFailed = true
		result.PhotoError = err.Error()
		return
	}

	record := &db.WaterMeterImage{
		ID:           uuid.New(),
		WaterMeterID: meter.ID,
		URL:          uploaded.URL,
		FileName:     photo.FileName,
		FileSize:     int64(len(photo.Data)),
		MimeType:     photo.MimeType,
		ExternalKey:  uploaded.ExternalKey,
		UploadedAt:   time.Now(),
	}
	if err := r.store.InsertMeterImage(ctx, nil, record); err != nil {
		r.logger.Warn("failed to record meter photo", zap.Error(err))
		result.PhotoUploadFailed = true
		result.PhotoError = err.Error()
	}
}
