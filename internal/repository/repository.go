package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/aigualink/water-metering-worker/internal/db"
)

// Tx is an alias for pgx.Tx
type Tx = pgx.Tx

// Repository handles database operations for water accounts, meters,
// readings and their images. Getters return (nil, nil) when no row matches;
// callers map that to their own not-found errors.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// q returns the transaction when one is supplied, otherwise the pool.
func (r *Repository) q(tx Tx) querier {
	if tx != nil {
		return tx
	}
	return r.pool
}

// BeginTx starts a serializable transaction. The read-compute-write unit of
// every reading mutation runs inside one of these so concurrent operations
// on the same meter cannot leave the cache stale.
func (r *Repository) BeginTx(ctx context.Context) (Tx, error) {
	return r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
}

// --- water accounts ---

// GetWaterAccount fetches an account by id.
func (r *Repository) GetWaterAccount(ctx context.Context, tx Tx, id uuid.UUID) (*db.WaterAccount, error) {
	query := `
		SELECT id, name, national_id, notes, created_at
		FROM water_accounts
		WHERE id = $1
	`

	var a db.WaterAccount
	err := r.q(tx).QueryRow(ctx, query, id).Scan(&a.ID, &a.Name, &a.NationalID, &a.Notes, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query water account: %w", err)
	}
	return &a, nil
}

// InsertWaterAccount inserts a new account.
func (r *Repository) InsertWaterAccount(ctx context.Context, tx Tx, a *db.WaterAccount) error {
	query := `
		INSERT INTO water_accounts (id, name, national_id, notes, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.q(tx).Exec(ctx, query, a.ID, a.Name, a.NationalID, a.Notes, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert water account: %w", err)
	}
	return nil
}

// --- water meters ---

const meterColumns = `
	id, water_account_id, name, measurement_unit,
	point_name, point_location, fixed_population, floating_population,
	cadastral_reference, community_zone_id, point_notes, is_active,
	last_reading_value, last_reading_date, last_reading_excess, created_at
`

func scanMeter(row pgx.Row) (*db.WaterMeter, error) {
	var m db.WaterMeter
	var lastValue decimal.NullDecimal
	err := row.Scan(
		&m.ID,
		&m.WaterAccountID,
		&m.Name,
		&m.Unit,
		&m.WaterPoint.Name,
		&m.WaterPoint.Location,
		&m.WaterPoint.FixedPopulation,
		&m.WaterPoint.FloatingPopulation,
		&m.WaterPoint.CadastralReference,
		&m.WaterPoint.CommunityZoneID,
		&m.WaterPoint.Notes,
		&m.Active,
		&lastValue,
		&m.LastReadingDate,
		&m.LastReadingExcess,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastValue.Valid {
		m.LastReadingValue = &lastValue.Decimal
	}
	return &m, nil
}

// GetWaterMeter fetches a meter by id, including its denormalized
// last-reading cache.
func (r *Repository) GetWaterMeter(ctx context.Context, tx Tx, id uuid.UUID) (*db.WaterMeter, error) {
	query := `SELECT ` + meterColumns + ` FROM water_meters WHERE id = $1`

	m, err := scanMeter(r.q(tx).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query water meter: %w", err)
	}
	return m, nil
}

// InsertWaterMeter inserts a new meter.
func (r *Repository) InsertWaterMeter(ctx context.Context, tx Tx, m *db.WaterMeter) error {
	query := `
		INSERT INTO water_meters (` + meterColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.q(tx).Exec(ctx, query,
		m.ID,
		m.WaterAccountID,
		m.Name,
		m.Unit,
		m.WaterPoint.Name,
		m.WaterPoint.Location,
		m.WaterPoint.FixedPopulation,
		m.WaterPoint.FloatingPopulation,
		m.WaterPoint.CadastralReference,
		m.WaterPoint.CommunityZoneID,
		m.WaterPoint.Notes,
		m.Active,
		nullDecimal(m.LastReadingValue),
		m.LastReadingDate,
		m.LastReadingExcess,
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert water meter: %w", err)
	}
	return nil
}

// SaveWaterMeter persists the mutable fields of a meter, including the
// last-reading cache triple.
func (r *Repository) SaveWaterMeter(ctx context.Context, tx Tx, m *db.WaterMeter) error {
	query := `
		UPDATE water_meters
		SET water_account_id = $2,
		    name = $3,
		    is_active = $4,
		    last_reading_value = $5,
		    last_reading_date = $6,
		    last_reading_excess = $7
		WHERE id = $1
	`

	_, err := r.q(tx).Exec(ctx, query,
		m.ID,
		m.WaterAccountID,
		m.Name,
		m.Active,
		nullDecimal(m.LastReadingValue),
		m.LastReadingDate,
		m.LastReadingExcess,
	)
	if err != nil {
		return fmt.Errorf("failed to save water meter: %w", err)
	}
	return nil
}

// --- water meter readings ---

const readingColumns = `id, water_meter_id, reading, normalized_reading, reading_date, notes, created_at`

func scanReading(row pgx.Row) (*db.WaterMeterReading, error) {
	var wr db.WaterMeterReading
	err := row.Scan(&wr.ID, &wr.WaterMeterID, &wr.Reading, &wr.NormalizedReading, &wr.ReadingDate, &wr.Notes, &wr.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &wr, nil
}

// GetReading fetches a reading by id.
func (r *Repository) GetReading(ctx context.Context, tx Tx, id uuid.UUID) (*db.WaterMeterReading, error) {
	query := `SELECT ` + readingColumns + ` FROM water_meter_readings WHERE id = $1`

	wr, err := scanReading(r.q(tx).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query reading: %w", err)
	}
	return wr, nil
}

// InsertReading inserts a new reading.
func (r *Repository) InsertReading(ctx context.Context, tx Tx, wr *db.WaterMeterReading) error {
	query := `
		INSERT INTO water_meter_readings (` + readingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.q(tx).Exec(ctx, query,
		wr.ID, wr.WaterMeterID, wr.Reading, wr.NormalizedReading, wr.ReadingDate, wr.Notes, wr.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// UpdateReading persists the editable fields of a reading.
func (r *Repository) UpdateReading(ctx context.Context, tx Tx, wr *db.WaterMeterReading) error {
	query := `
		UPDATE water_meter_readings
		SET reading = $2, normalized_reading = $3, notes = $4
		WHERE id = $1
	`

	_, err := r.q(tx).Exec(ctx, query, wr.ID, wr.Reading, wr.NormalizedReading, wr.Notes)
	if err != nil {
		return fmt.Errorf("failed to update reading: %w", err)
	}
	return nil
}

// DeleteReading removes a reading row.
func (r *Repository) DeleteReading(ctx context.Context, tx Tx, id uuid.UUID) error {
	_, err := r.q(tx).Exec(ctx, `DELETE FROM water_meter_readings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete reading: %w", err)
	}
	return nil
}

// MostRecentReadings returns up to n readings of a meter ordered from
// newest to oldest by reading date.
func (r *Repository) MostRecentReadings(ctx context.Context, tx Tx, meterID uuid.UUID, n int) ([]db.WaterMeterReading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM water_meter_readings
		WHERE water_meter_id = $1
		ORDER BY reading_date DESC
		LIMIT $2
	`

	rows, err := r.q(tx).Query(ctx, query, meterID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent readings: %w", err)
	}
	defer rows.Close()

	var readings []db.WaterMeterReading
	for rows.Next() {
		wr, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, *wr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return readings, nil
}

// --- images ---

// GetMeterImage fetches the device photo of a meter, if any.
func (r *Repository) GetMeterImage(ctx context.Context, tx Tx, meterID uuid.UUID) (*db.WaterMeterImage, error) {
	query := `
		SELECT id, water_meter_id, url, file_name, file_size, mime_type, external_key, uploaded_at
		FROM water_meter_images
		WHERE water_meter_id = $1
	`

	var img db.WaterMeterImage
	err := r.q(tx).QueryRow(ctx, query, meterID).Scan(
		&img.ID, &img.WaterMeterID, &img.URL, &img.FileName, &img.FileSize,
		&img.MimeType, &img.ExternalKey, &img.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query meter image: %w", err)
	}
	return &img, nil
}

// InsertMeterImage attaches a device photo to a meter.
func (r *Repository) InsertMeterImage(ctx context.Context, tx Tx, img *db.WaterMeterImage) error {
	query := `
		INSERT INTO water_meter_images (id, water_meter_id, url, file_name, file_size, mime_type, external_key, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.q(tx).Exec(ctx, query,
		img.ID, img.WaterMeterID, img.URL, img.FileName, img.FileSize,
		img.MimeType, img.ExternalKey, img.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to insert meter image: %w", err)
	}
	return nil
}

// GetReadingImage fetches the evidence photo of a reading, if any.
func (r *Repository) GetReadingImage(ctx context.Context, tx Tx, readingID uuid.UUID) (*db.WaterMeterReadingImage, error) {
	query := `
		SELECT id, water_meter_reading_id, url, file_name, file_size, mime_type, external_key, uploaded_at
		FROM water_meter_reading_images
		WHERE water_meter_reading_id = $1
	`

	var img db.WaterMeterReadingImage
	err := r.q(tx).QueryRow(ctx, query, readingID).Scan(
		&img.ID, &img.WaterMeterReadingID, &img.URL, &img.FileName, &img.FileSize,
		&img.MimeType, &img.ExternalKey, &img.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query reading image: %w", err)
	}
	return &img, nil
}

// InsertReadingImage attaches an evidence photo to a reading.
func (r *Repository) InsertReadingImage(ctx context.Context, tx Tx, img *db.WaterMeterReadingImage) error {
	query := `
		INSERT INTO water_meter_reading_images (id, water_meter_reading_id, url, file_name, file_size, mime_type, external_key, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.q(tx).Exec(ctx, query,
		img.ID, img.WaterMeterReadingID, img.URL, img.FileName, img.FileSize,
		img.MimeType, img.ExternalKey, img.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to insert reading image: %w", err)
	}
	return nil
}

// DeleteReadingImage removes an evidence-photo row.
func (r *Repository) DeleteReadingImage(ctx context.Context, tx Tx, id uuid.UUID) error {
	_, err := r.q(tx).Exec(ctx, `DELETE FROM water_meter_reading_images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete reading image: %w", err)
	}
	return nil
}

// --- community rule chain ---

// GetCommunityZone fetches a community zone by id.
func (r *Repository) GetCommunityZone(ctx context.Context, tx Tx, id uuid.UUID) (*db.CommunityZone, error) {
	query := `SELECT id, community_id FROM community_zones WHERE id = $1`

	var z db.CommunityZone
	err := r.q(tx).QueryRow(ctx, query, id).Scan(&z.ID, &z.CommunityID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query community zone: %w", err)
	}
	return &z, nil
}

// GetCommunity fetches a community and its consumption limit rule.
func (r *Repository) GetCommunity(ctx context.Context, tx Tx, id uuid.UUID) (*db.Community, error) {
	query := `SELECT id, name, rule_type, rule_value FROM communities WHERE id = $1`

	var c db.Community
	err := r.q(tx).QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.RuleType, &c.RuleValue)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query community: %w", err)
	}
	return &c, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
