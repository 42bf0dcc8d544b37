package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aigualink/water-metering-worker/internal/db"
)

// NewAccountInput describes an account created on the fly during an
// ownership change.
type NewAccountInput struct {
	Name       string
	NationalID string
	Notes      *string
}

// ChangeOwnerInput reassigns a meter either to an existing account (by id)
// or to a newly created one. Exactly one of the two must be set.
type ChangeOwnerInput struct {
	WaterMeterID   uuid.UUID
	WaterAccountID *uuid.UUID
	NewAccount     *NewAccountInput
}

// ChangeOwnerResult reports the reassigned meter and its account.
type ChangeOwnerResult struct {
	Meter   *db.WaterMeter
	Account *db.WaterAccount
}

// WaterMeterOwnerChanger reassigns a meter's billing account. It touches
// neither the reading log nor the consumption cache.
type WaterMeterOwnerChanger struct {
	store  Store
	logger *zap.Logger
}

// NewWaterMeterOwnerChanger creates a new owner changer.
func NewWaterMeterOwnerChanger(store Store, logger *zap.Logger) *WaterMeterOwnerChanger {
	return &WaterMeterOwnerChanger{store: store, logger: logger}
}

// ChangeOwner moves a meter to another water account, creating the account
// first when requested.
func (c *WaterMeterOwnerChanger) ChangeOwner(ctx context.Context, in ChangeOwnerInput) (*ChangeOwnerResult, error) {
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

	var account *db.WaterAccount
	switch {
	case in.WaterAccountID != nil:
		account, err = c.store.GetWaterAccount(ctx, tx, *in.WaterAccountID)
		if err != nil {
			return nil, err
		}
		if account == nil {
			return nil, ErrAccountNotFound
		}
	case in.NewAccount != nil:
		account = &db.WaterAccount{
			ID:         uuid.New(),
			Name:       in.NewAccount.Name,
			NationalID: in.NewAccount.NationalID,
			Notes:      in.NewAccount.Notes,
			CreatedAt:  time.Now(),
		}
		if err := c.store.InsertWaterAccount(ctx, tx, account); err != nil {
			return nil, err
		}
	default:
		return nil, ErrAccountNotFound
	}

	meter.WaterAccountID = account.ID
	if err := c.store.SaveWaterMeter(ctx, tx, meter); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	c.logger.Info("water meter owner changed",
		zap.String("water_meter_id", meter.ID.String()),
		zap.String("water_account_id", account.ID.String()),
	)

	return &ChangeOwnerResult{Meter: meter, Account: account}, nil
}
