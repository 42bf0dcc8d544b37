package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aigualink/water-metering-worker/internal/db"
	"github.com/aigualink/water-metering-worker/internal/storage"
)

// UpdateReadingInput is the input of ReadingUpdater.Update. Nil fields are
// left untouched. DeleteImage removes the current evidence photo; combined
// with Image it replaces it, delete first.
type UpdateReadingInput struct {
	ReadingID   uuid.UUID
	Reading     *string
	Notes       *string
	Image       *ImageUpload
	DeleteImage bool
}

// UpdateReadingResult reports the updated reading and meter plus the
// independent outcomes of the image operations.
type UpdateReadingResult struct {
	Reading *db.WaterMeterReading
	Meter   *db.WaterMeter

	ImageUploadFailed bool
	ImageDeleteFailed bool
	ImageError        string
}

// ReadingUpdater edits one of the two most recently dated readings of a
// meter.
type ReadingUpdater struct {
	store   Store
	updater *LastReadingUpdater
	files   storage.Store
	logger  *zap.Logger
}

// NewReadingUpdater creates a new reading updater.
func NewReadingUpdater(store Store, updater *LastReadingUpdater, files storage.Store, logger *zap.Logger) *ReadingUpdater {
	return &ReadingUpdater{store: store, updater: updater, files: files, logger: logger}
}

// Update applies a partial edit to a reading. Only the two most recent
// readings of the meter are editable: the newest may not drop below the
// previous one, and the previous may not rise above the newest. The cache
// is always recomputed, even for notes-only edits.
func (u *ReadingUpdater) Update(ctx context.Context, in UpdateReadingInput) (*UpdateReadingResult, error) {
	tx, err := u.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	reading, err := u.store.GetReading(ctx, tx, in.ReadingID)
	if err != nil {
		return nil, err
	}
	if reading == nil {
		return nil, ErrReadingNotFound
	}

	meter, err := u.store.GetWaterMeter(ctx, tx, reading.WaterMeterID)
	if err != nil {
		return nil, err
	}
	if meter == nil {
		return nil, ErrMeterNotFound
	}

	recent, err := u.store.MostRecentReadings(ctx, tx, meter.ID, 2)
	if err != nil {
		return nil, err
	}

	isLast := len(recent) > 0 && recent[0].ID == reading.ID
	isPrevious := len(recent) > 1 && recent[1].ID == reading.ID
	if !isLast && !isPrevious {
		return nil, ErrReadingNotLast
	}

	if in.Reading != nil {
		normalized, err := meter.Unit.NormalizeString(*in.Reading)
		if err != nil {
			return nil, err
		}
		if isLast && len(recent) > 1 && normalized.LessThan(recent[1].NormalizedReading) {
			return nil, ErrReadingNotAllowed
		}
		if isPrevious && normalized.GreaterThan(recent[0].NormalizedReading) {
			return nil, ErrReadingNotAllowed
		}
		reading.Reading = *in.Reading
		reading.NormalizedReading = normalized
	}
	if in.Notes != nil {
		reading.Notes = in.Notes
	}

	if err := u.store.UpdateReading(ctx, tx, reading); err != nil {
		return nil, err
	}

	// Re-fetch so the engine derives the cache from canonical state, then
	// recompute unconditionally: the engine is the cache's only writer.
	recent, err = u.store.MostRecentReadings(ctx, tx, meter.ID, 2)
	if err != nil {
		return nil, err
	}
	meter, err = u.updater.Recalculate(ctx, tx, meter, recent)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	result := &UpdateReadingResult{Reading: reading, Meter: meter}
	u.applyImageChanges(ctx, reading, in, result)
	return result, nil
}

// applyImageChanges runs the best-effort image side effects after the
// reading edit has committed. When replacing, the delete runs first so a
// failed upload cannot leave two images attached.
func (u *ReadingUpdater) applyImageChanges(ctx context.Context, reading *db.WaterMeterReading, in UpdateReadingInput, result *UpdateReadingResult) {
	if in.DeleteImage || in.Image != nil {
		existing, err := u.store.GetReadingImage(ctx, nil, reading.ID)
		if err != nil {
			// Without knowing whether an image is attached, uploading could
			// leave two attached. Report the delete leg failed and stop.
			u.logger.Warn("failed to look up reading image", zap.Error(err))
			result.ImageDeleteFailed = true
			result.ImageError = err.Error()
			return
		}
		if existing != nil {
			if err := u.files.Delete(ctx, existing.ExternalKey); err != nil {
				u.logger.Warn("reading image blob delete failed",
					zap.Error(err),
					zap.String("reading_id", reading.ID.String()),
				)
				result.ImageDeleteFailed = true
				result.ImageError = err.Error()
			}
			if err := u.store.DeleteReadingImage(ctx, nil, existing.ID); err != nil {
				u.logger.Warn("failed to remove reading image record", zap.Error(err))
				result.ImageDeleteFailed = true
				result.ImageError = err.Error()
			}
		}
	}

	if in.Image == nil {
		return
	}

	uploaded, err := u.files.Upload(ctx, in.Image.Data, storage.Metadata{
		FileName: in.Image.FileName,
		MimeType: in.Image.MimeType,
	}, reading.ID, readingImageFolder)
	if err != nil {
		u.logger.Warn("reading image upload failed",
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
		FileName:            in.Image.FileName,
		FileSize:            int64(len(in.Image.Data)),
		MimeType:            in.Image.MimeType,
		ExternalKey:         uploaded.ExternalKey,
		UploadedAt:          time.Now(),
	}
	if err := u.store.InsertReadingImage(ctx, nil, record); err != nil {
		u.logger.Warn("failed to record reading image", zap.Error(err))
		result.ImageUploadFailed = true
		result.ImageError = err.Error()
	}
}
