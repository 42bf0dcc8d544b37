package service_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/aigualink/water-metering-worker/internal/consumption"
	"github.com/aigualink/water-metering-worker/internal/db"
	"github.com/aigualink/water-metering-worker/internal/measurement"
	"github.com/aigualink/water-metering-worker/internal/service"
	"github.com/aigualink/water-metering-worker/internal/storage"
)

// fakeTx satisfies pgx.Tx for the fake store. Only Commit and Rollback are
// ever called by the services.
type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

// fakeStore is an in-memory service.Store.
type fakeStore struct {
	accounts      map[uuid.UUID]db.WaterAccount
	meters        map[uuid.UUID]db.WaterMeter
	readings      map[uuid.UUID]db.WaterMeterReading
	readingImages map[uuid.UUID]db.WaterMeterReadingImage
	meterImages   map[uuid.UUID]db.WaterMeterImage
	zones         map[uuid.UUID]db.CommunityZone
	communities   map[uuid.UUID]db.Community

	insertReadingImageErr error
	getReadingImageErr    error
	lastTx                *fakeTx
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:      make(map[uuid.UUID]db.WaterAccount),
		meters:        make(map[uuid.UUID]db.WaterMeter),
		readings:      make(map[uuid.UUID]db.WaterMeterReading),
		readingImages: make(map[uuid.UUID]db.WaterMeterReadingImage),
		meterImages:   make(map[uuid.UUID]db.WaterMeterImage),
		zones:         make(map[uuid.UUID]db.CommunityZone),
		communities:   make(map[uuid.UUID]db.Community),
	}
}

func (s *fakeStore) BeginTx(ctx context.Context) (service.Tx, error) {
	s.lastTx = &fakeTx{}
	return s.lastTx, nil
}

func (s *fakeStore) GetWaterAccount(ctx context.Context, tx service.Tx, id uuid.UUID) (*db.WaterAccount, error) {
	if a, ok := s.accounts[id]; ok {
		copied := a
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeStore) InsertWaterAccount(ctx context.Context, tx service.Tx, a *db.WaterAccount) error {
	s.accounts[a.ID] = *a
	return nil
}

func (s *fakeStore) GetWaterMeter(ctx context.Context, tx service.Tx, id uuid.UUID) (*db.WaterMeter, error) {
	if m, ok := s.meters[id]; ok {
		copied := m
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeStore) InsertWaterMeter(ctx context.Context, tx service.Tx, m *db.WaterMeter) error {
	s.meters[m.ID] = *m
	return nil
}

func (s *fakeStore) SaveWaterMeter(ctx context.Context, tx service.Tx, m *db.WaterMeter) error {
	s.meters[m.ID] = *m
	return nil
}

func (s *fakeStore) GetReading(ctx context.Context, tx service.Tx, id uuid.UUID) (*db.WaterMeterReading, error) {
	if wr, ok := s.readings[id]; ok {
		copied := wr
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeStore) InsertReading(ctx context.Context, tx service.Tx, wr *db.WaterMeterReading) error {
	s.readings[wr.ID] = *wr
	return nil
}

func (s *fakeStore) UpdateReading(ctx context.Context, tx service.Tx, wr *db.WaterMeterReading) error {
	if _, ok := s.readings[wr.ID]; !ok {
		return errors.New("reading does not exist")
	}
	s.readings[wr.ID] = *wr
	return nil
}

func (s *fakeStore) DeleteReading(ctx context.Context, tx service.Tx, id uuid.UUID) error {
	delete(s.readings, id)
	return nil
}

func (s *fakeStore) MostRecentReadings(ctx context.Context, tx service.Tx, meterID uuid.UUID, n int) ([]db.WaterMeterReading, error) {
	var all []db.WaterMeterReading
	for _, wr := range s.readings {
		if wr.WaterMeterID == meterID {
			all = append(all, wr)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].ReadingDate.After(all[j].ReadingDate)
	})
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}

func (s *fakeStore) GetMeterImage(ctx context.Context, tx service.Tx, meterID uuid.UUID) (*db.WaterMeterImage, error) {
	for _, img := range s.meterImages {
		if img.WaterMeterID == meterID {
			copied := img
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) InsertMeterImage(ctx context.Context, tx service.Tx, img *db.WaterMeterImage) error {
	s.meterImages[img.ID] = *img
	return nil
}

func (s *fakeStore) GetReadingImage(ctx context.Context, tx service.Tx, readingID uuid.UUID) (*db.WaterMeterReadingImage, error) {
	if s.getReadingImageErr != nil {
		return nil, s.getReadingImageErr
	}
	for _, img := range s.readingImages {
		if img.WaterMeterReadingID == readingID {
			copied := img
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) InsertReadingImage(ctx context.Context, tx service.Tx, img *db.WaterMeterReadingImage) error {
	if s.insertReadingImageErr != nil {
		return s.insertReadingImageErr
	}
	s.readingImages[img.ID] = *img
	return nil
}

func (s *fakeStore) DeleteReadingImage(ctx context.Context, tx service.Tx, id uuid.UUID) error {
	delete(s.readingImages, id)
	return nil
}

func (s *fakeStore) GetCommunityZone(ctx context.Context, tx service.Tx, id uuid.UUID) (*db.CommunityZone, error) {
	if z, ok := s.zones[id]; ok {
		copied := z
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeStore) GetCommunity(ctx context.Context, tx service.Tx, id uuid.UUID) (*db.Community, error) {
	if c, ok := s.communities[id]; ok {
		copied := c
		return &copied, nil
	}
	return nil, nil
}

// fakeFiles is an in-memory storage.Store.
type fakeFiles struct {
	uploadErr error
	deleteErr error
	uploads   []string
	deletes   []string
	ops       []string
}

func (f *fakeFiles) Upload(ctx context.Context, data []byte, meta storage.Metadata, ownerID uuid.UUID, folder string) (*storage.UploadResult, error) {
	f.ops = append(f.ops, "upload")
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	key := fmt.Sprintf("%s/%s/%s", folder, ownerID, meta.FileName)
	f.uploads = append(f.uploads, key)
	return &storage.UploadResult{URL: "https://blobs.example.com/" + key, ExternalKey: key}, nil
}

func (f *fakeFiles) Delete(ctx context.Context, externalKey string) error {
	f.ops = append(f.ops, "delete")
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletes = append(f.deletes, externalKey)
	return nil
}

// env bundles a populated fake store with the community rule chain a meter
// needs for recalculation.
type env struct {
	store *fakeStore
	files *fakeFiles
	meter db.WaterMeter
}

type envOptions struct {
	ruleType           consumption.RuleType
	ruleValue          int64
	fixedPopulation    int
	floatingPopulation int
	unit               measurement.Unit
}

func newEnv(opts envOptions) *env {
	store := newFakeStore()

	community := db.Community{
		ID:        uuid.New(),
		Name:      "Font Freda",
		RuleType:  opts.ruleType,
		RuleValue: decimal.NewFromInt(opts.ruleValue),
	}
	store.communities[community.ID] = community

	zone := db.CommunityZone{ID: uuid.New(), CommunityID: community.ID}
	store.zones[zone.ID] = zone

	account := db.WaterAccount{
		ID:         uuid.New(),
		Name:       "Maria Serra",
		NationalID: "12345678Z",
		CreatedAt:  time.Now(),
	}
	store.accounts[account.ID] = account

	unit := opts.unit
	if unit == "" {
		unit = measurement.Liters
	}

	meter := db.WaterMeter{
		ID:             uuid.New(),
		WaterAccountID: account.ID,
		Name:           "Meter 001",
		Unit:           unit,
		WaterPoint: db.WaterPoint{
			Name:               "Casa Serra",
			Location:           "41.38,2.17",
			FixedPopulation:    opts.fixedPopulation,
			FloatingPopulation: opts.floatingPopulation,
			CadastralReference: "9872023VH5797S",
			CommunityZoneID:    zone.ID,
		},
		Active:    true,
		CreatedAt: time.Now(),
	}
	store.meters[meter.ID] = meter

	return &env{store: store, files: &fakeFiles{}, meter: meter}
}

// addReading seeds a committed reading on the env's meter.
func (e *env) addReading(value string, normalized int64, date time.Time) db.WaterMeterReading {
	wr := db.WaterMeterReading{
		ID:                uuid.New(),
		WaterMeterID:      e.meter.ID,
		Reading:           value,
		NormalizedReading: decimal.NewFromInt(normalized),
		ReadingDate:       date,
		CreatedAt:         date,
	}
	e.store.readings[wr.ID] = wr
	return wr
}

func (e *env) currentMeter() db.WaterMeter {
	return e.store.meters[e.meter.ID]
}

func daysAgo(n int) time.Time {
	return time.Now().Add(-time.Duration(n) * 24 * time.Hour)
}
