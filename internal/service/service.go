// Package service implements the water-account consumption-tracking engine:
// creation, editing and deletion of meter readings under strict ordering
// rules, recalculation of each meter's denormalized last-reading cache,
// meter replacement and ownership changes.
//
// Every mutation of the reading log and the cache runs inside one
// serializable transaction obtained from the store. Image uploads and
// deletions are best-effort side effects reported on result structs; they
// never roll back a committed mutation.
package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aigualink/water-metering-worker/internal/db"
)

// Tx is an alias for pgx.Tx
type Tx = pgx.Tx

// Store is the persistence contract of the service layer, implemented by
// repository.Repository. Getters return (nil, nil) when no row matches.
// A nil tx runs the call outside any transaction.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)

	GetWaterAccount(ctx context.Context, tx Tx, id uuid.UUID) (*db.WaterAccount, error)
	InsertWaterAccount(ctx context.Context, tx Tx, a *db.WaterAccount) error

	GetWaterMeter(ctx context.Context, tx Tx, id uuid.UUID) (*db.WaterMeter, error)
	InsertWaterMeter(ctx context.Context, tx Tx, m *db.WaterMeter) error
	SaveWaterMeter(ctx context.Context, tx Tx, m *db.WaterMeter) error

	GetReading(ctx context.Context, tx Tx, id uuid.UUID) (*db.WaterMeterReading, error)
	InsertReading(ctx context.Context, tx Tx, wr *db.WaterMeterReading) error
	UpdateReading(ctx context.Context, tx Tx, wr *db.WaterMeterReading) error
	DeleteReading(ctx context.Context, tx Tx, id uuid.UUID) error
	MostRecentReadings(ctx context.Context, tx Tx, meterID uuid.UUID, n int) ([]db.WaterMeterReading, error)

	GetMeterImage(ctx context.Context, tx Tx, meterID uuid.UUID) (*db.WaterMeterImage, error)
	InsertMeterImage(ctx context.Context, tx Tx, img *db.WaterMeterImage) error
	GetReadingImage(ctx context.Context, tx Tx, readingID uuid.UUID) (*db.WaterMeterReadingImage, error)
	InsertReadingImage(ctx context.Context, tx Tx, img *db.WaterMeterReadingImage) error
	DeleteReadingImage(ctx context.Context, tx Tx, id uuid.UUID) error

	GetCommunityZone(ctx context.Context, tx Tx, id uuid.UUID) (*db.CommunityZone, error)
	GetCommunity(ctx context.Context, tx Tx, id uuid.UUID) (*db.Community, error)
}

// ImageUpload carries the bytes and metadata of a photo supplied with an
// operation.
type ImageUpload struct {
	Data     []byte
	FileName string
	MimeType string
}
