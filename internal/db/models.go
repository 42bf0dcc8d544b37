package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aigualink/water-metering-worker/internal/consumption"
	"github.com/aigualink/water-metering-worker/internal/measurement"
)

// WaterAccount represents a billed customer.
type WaterAccount struct {
	ID         uuid.UUID
	Name       string
	NationalID string
	Notes      *string
	CreatedAt  time.Time
}

// WaterPoint is the physical location a meter serves, embedded in the
// meter row. Population counts feed the person-based limit rule.
type WaterPoint struct {
	Name               string
	Location           string
	FixedPopulation    int
	FloatingPopulation int
	CadastralReference string
	CommunityZoneID    uuid.UUID
	Notes              *string
}

// WaterMeter represents a physical meter attached to a water point.
//
// The three LastReading fields are a denormalized cache of the most recent
// reading. They are always set or cleared together, and only by the
// last-reading updater.
type WaterMeter struct {
	ID             uuid.UUID
	WaterAccountID uuid.UUID
	Name           string
	Unit           measurement.Unit
	WaterPoint     WaterPoint
	Active         bool

	LastReadingValue  *decimal.Decimal
	LastReadingDate   *time.Time
	LastReadingExcess *bool

	CreatedAt time.Time
}

// WaterMeterReading is one logged measurement event. Reading holds the raw
// value as an exact decimal string in the meter's declared unit;
// NormalizedReading is in liters.
type WaterMeterReading struct {
	ID                uuid.UUID
	WaterMeterID      uuid.UUID
	Reading           string
	NormalizedReading decimal.Decimal
	ReadingDate       time.Time
	Notes             *string
	CreatedAt         time.Time
}

// WaterMeterImage is the device photo of a meter, at most one per meter.
type WaterMeterImage struct {
	ID           uuid.UUID
	WaterMeterID uuid.UUID
	URL          string
	FileName     string
	FileSize     int64
	MimeType     string
	ExternalKey  string
	UploadedAt   time.Time
}

// WaterMeterReadingImage is the evidence photo attached to a reading,
// at most one per reading.
type WaterMeterReadingImage struct {
	ID                  uuid.UUID
	WaterMeterReadingID uuid.UUID
	URL                 string
	FileName            string
	FileSize            int64
	MimeType            string
	ExternalKey         string
	UploadedAt          time.Time
}

// CommunityZone links a water point to its owning community.
type CommunityZone struct {
	ID          uuid.UUID
	CommunityID uuid.UUID
}

// Community carries the consumption limit rule applied to all meters in
// its zones. RuleValue is liters per day.
type Community struct {
	ID        uuid.UUID
	Name      string
	RuleType  consumption.RuleType
	RuleValue decimal.Decimal
}
