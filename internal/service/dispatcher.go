package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aigualink/water-metering-worker/internal/db"
	"github.com/aigualink/water-metering-worker/internal/logging"
	"github.com/aigualink/water-metering-worker/internal/measurement"
	"github.com/aigualink/water-metering-worker/internal/mq"
	"github.com/aigualink/water-metering-worker/tools/dateparser"
)

// Command actions accepted on the ingest queue.
const (
	ActionCreateReading = "reading.create"
	ActionUpdateReading = "reading.update"
	ActionDeleteReading = "reading.delete"
	ActionReplaceMeter  = "meter.replace"
	ActionChangeOwner   = "meter.change_owner"
)

// CommandMessage is the envelope of every command published by the field
// applications.
type CommandMessage struct {
	RequestID string          `json:"request_id"`
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload"`
}

type imagePayload struct {
	Data     []byte `json:"data"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
}

func (p *imagePayload) toUpload() *ImageUpload {
	if p == nil {
		return nil
	}
	return &ImageUpload{Data: p.Data, FileName: p.FileName, MimeType: p.MimeType}
}

type createReadingPayload struct {
	WaterMeterID string        `json:"water_meter_id"`
	Reading      string        `json:"reading"`
	ReadingDate  string        `json:"reading_date,omitempty"`
	Notes        *string       `json:"notes,omitempty"`
	Image        *imagePayload `json:"image,omitempty"`
}

type updateReadingPayload struct {
	ReadingID   string        `json:"reading_id"`
	Reading     *string       `json:"reading,omitempty"`
	Notes       *string       `json:"notes,omitempty"`
	Image       *imagePayload `json:"image,omitempty"`
	DeleteImage bool          `json:"delete_image,omitempty"`
}

type deleteReadingPayload struct {
	ReadingID string `json:"reading_id"`
}

type replaceMeterPayload struct {
	WaterMeterID    string        `json:"water_meter_id"`
	NewName         string        `json:"new_name"`
	NewUnit         string        `json:"new_unit"`
	ReplacementDate string        `json:"replacement_date,omitempty"`
	FinalReading    *string       `json:"final_reading,omitempty"`
	Photo           *imagePayload `json:"photo,omitempty"`
}

type changeOwnerPayload struct {
	WaterMeterID   string  `json:"water_meter_id"`
	WaterAccountID *string `json:"water_account_id,omitempty"`
	NewAccount     *struct {
		Name       string  `json:"name"`
		NationalID string  `json:"national_id"`
		Notes      *string `json:"notes,omitempty"`
	} `json:"new_account,omitempty"`
}

// EventPublisher publishes reading events after a command has been applied.
type EventPublisher interface {
	PublishReadingEvent(ctx context.Context, event mq.ReadingEvent, routingKey string) error
}

// Dispatcher parses command messages from the ingest queue and routes them
// to the water-account services, publishing a reading event after each
// committed mutation.
type Dispatcher struct {
	creator      *ReadingCreator
	updater      *ReadingUpdater
	deleter      *ReadingDeleter
	replacer     *WaterMeterReplacer
	ownerChanger *WaterMeterOwnerChanger
	publisher    EventPublisher
	routingKey   string
	logger       *zap.Logger
}

// NewDispatcher creates a new command dispatcher.
func NewDispatcher(
	creator *ReadingCreator,
	updater *ReadingUpdater,
	deleter *ReadingDeleter,
	replacer *WaterMeterReplacer,
	ownerChanger *WaterMeterOwnerChanger,
	publisher EventPublisher,
	routingKey string,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		creator:      creator,
		updater:      updater,
		deleter:      deleter,
		replacer:     replacer,
		ownerChanger: ownerChanger,
		publisher:    publisher,
		routingKey:   routingKey,
		logger:       logger,
	}
}

// HandleMessage is the mq.MessageHandler entry point. A returned error
// sends the command to the DLQ.
func (d *Dispatcher) HandleMessage(ctx context.Context, body []byte) error {
	var msg CommandMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal command: %w", err)
	}

	reqLogger := logging.WithRequestID(d.logger, msg.RequestID)
	reqLogger.Info("processing command", zap.String("action", msg.Action))

	var err error
	switch msg.Action {
	case ActionCreateReading:
		err = d.handleCreateReading(ctx, msg.Payload, reqLogger)
	case ActionUpdateReading:
		err = d.handleUpdateReading(ctx, msg.Payload, reqLogger)
	case ActionDeleteReading:
		err = d.handleDeleteReading(ctx, msg.Payload, reqLogger)
	case ActionReplaceMeter:
		err = d.handleReplaceMeter(ctx, msg.Payload, reqLogger)
	case ActionChangeOwner:
		err = d.handleChangeOwner(ctx, msg.Payload, reqLogger)
	default:
		err = fmt.Errorf("unknown action %q", msg.Action)
	}

	if err != nil {
		reqLogger.Error("command failed", zap.Error(err), zap.String("action", msg.Action))
		return fmt.Errorf("command %s failed: %w", msg.Action, err)
	}

	reqLogger.Info("command processed", zap.String("action", msg.Action))
	return nil
}

func (d *Dispatcher) handleCreateReading(ctx context.Context, payload json.RawMessage, logger *zap.Logger) error {
	var p createReadingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	meterID, err := uuid.Parse(p.WaterMeterID)
	if err != nil {
		return fmt.Errorf("invalid water_meter_id: %w", err)
	}

	var date *time.Time
	if p.ReadingDate != "" {
		parsed, err := dateparser.ParseReadingDate(p.ReadingDate)
		if err != nil {
			return err
		}
		date = &parsed
	}

	result, err := d.creator.Create(ctx, CreateReadingInput{
		WaterMeterID: meterID,
		Reading:      p.Reading,
		ReadingDate:  date,
		Notes:        p.Notes,
		Image:        p.Image.toUpload(),
	})
	if err != nil {
		return err
	}

	if result.ImageUploadFailed {
		logger.Warn("reading created but image upload failed",
			zap.String("reading_id", result.Reading.ID.String()),
			zap.String("image_error", result.ImageError),
		)
	}

	d.publishEvent(ctx, logger, ActionCreateReading, result.Meter, &result.Reading.ID)
	return nil
}

func (d *Dispatcher) handleUpdateReading(ctx context.Context, payload json.RawMessage, logger *zap.Logger) error {
	var p updateReadingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	readingID, err := uuid.Parse(p.ReadingID)
	if err != nil {
		return fmt.Errorf("invalid reading_id: %w", err)
	}

	result, err := d.updater.Update(ctx, UpdateReadingInput{
		ReadingID:   readingID,
		Reading:     p.Reading,
		Notes:       p.Notes,
		Image:       p.Image.toUpload(),
		DeleteImage: p.DeleteImage,
	})
	if err != nil {
		return err
	}

	if result.ImageUploadFailed || result.ImageDeleteFailed {
		logger.Warn("reading updated but image operation failed",
			zap.String("reading_id", result.Reading.ID.String()),
			zap.String("image_error", result.ImageError),
		)
	}

	d.publishEvent(ctx, logger, ActionUpdateReading, result.Meter, &result.Reading.ID)
	return nil
}

func (d *Dispatcher) handleDeleteReading(ctx context.Context, payload json.RawMessage, logger *zap.Logger) error {
	var p deleteReadingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	readingID, err := uuid.Parse(p.ReadingID)
	if err != nil {
		return fmt.Errorf("invalid reading_id: %w", err)
	}

	result, err := d.deleter.Delete(ctx, readingID)
	if err != nil {
		return err
	}

	if result.ImageDeleteFailed {
		logger.Warn("reading deleted but image cleanup failed",
			zap.String("image_error", result.ImageError),
		)
	}

	d.publishEvent(ctx, logger, ActionDeleteReading, result.Meter, nil)
	return nil
}

func (d *Dispatcher) handleReplaceMeter(ctx context.Context, payload json.RawMessage, logger *zap.Logger) error {
	var p replaceMeterPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	meterID, err := uuid.Parse(p.WaterMeterID)
	if err != nil {
		return fmt.Errorf("invalid water_meter_id: %w", err)
	}

	unit, err := measurement.ParseUnit(p.NewUnit)
	if err != nil {
		return err
	}

	var date *time.Time
	if p.ReplacementDate != "" {
		parsed, err := dateparser.ParseReadingDate(p.ReplacementDate)
		if err != nil {
			return err
		}
		date = &parsed
	}

	result, err := d.replacer.Replace(ctx, ReplaceMeterInput{
		WaterMeterID:    meterID,
		NewName:         p.NewName,
		NewUnit:         unit,
		ReplacementDate: date,
		FinalReading:    p.FinalReading,
		Photo:           p.Photo.toUpload(),
	})
	if err != nil {
		return err
	}

	if result.PhotoUploadFailed {
		logger.Warn("meter replaced but photo upload failed",
			zap.String("water_meter_id", result.NewMeter.ID.String()),
			zap.String("photo_error", result.PhotoError),
		)
	}

	var readingID *uuid.UUID
	if result.BootstrapReading != nil {
		readingID = &result.BootstrapReading.ID
	}
	d.publishEvent(ctx, logger, ActionReplaceMeter, result.NewMeter, readingID)
	return nil
}

func (d *Dispatcher) handleChangeOwner(ctx context.Context, payload json.RawMessage, logger *zap.Logger) error {
	var p changeOwnerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	meterID, err := uuid.Parse(p.WaterMeterID)
	if err != nil {
		return fmt.Errorf("invalid water_meter_id: %w", err)
	}

	in := ChangeOwnerInput{WaterMeterID: meterID}
	if p.WaterAccountID != nil {
		accountID, err := uuid.Parse(*p.WaterAccountID)
		if err != nil {
			return fmt.Errorf("invalid water_account_id: %w", err)
		}
		in.WaterAccountID = &accountID
	}
	if p.NewAccount != nil {
		in.NewAccount = &NewAccountInput{
			Name:       p.NewAccount.Name,
			NationalID: p.NewAccount.NationalID,
			Notes:      p.NewAccount.Notes,
		}
	}

	result, err := d.ownerChanger.ChangeOwner(ctx, in)
	if err != nil {
		return err
	}

	logger.Info("owner changed",
		zap.String("water_meter_id", result.Meter.ID.String()),
		zap.String("water_account_id", result.Account.ID.String()),
	)
	return nil
}

// publishEvent publishes the post-commit reading event. Publish failures
// are logged only; the command has already been applied.
func (d *Dispatcher) publishEvent(ctx context.Context, logger *zap.Logger, action string, meter *db.WaterMeter, readingID *uuid.UUID) {
	if d.publisher == nil {
		return
	}

	event := mq.ReadingEvent{
		Action:       action,
		WaterMeterID: meter.ID.String(),
		OccurredAt:   time.Now(),
	}
	if readingID != nil {
		event.ReadingID = readingID.String()
	}
	if meter.LastReadingValue != nil {
		event.NormalizedReading = meter.LastReadingValue.String()
	}
	if meter.LastReadingDate != nil {
		event.ReadingDate = *meter.LastReadingDate
	}
	if meter.LastReadingExcess != nil {
		event.ExcessConsumption = *meter.LastReadingExcess
	}

	if err := d.publisher.PublishReadingEvent(ctx, event, d.routingKey); err != nil {
		logger.Error("failed to publish reading event",
			zap.Error(err),
			zap.String("action", action),
			zap.String("water_meter_id", event.WaterMeterID),
		)
	}
}
