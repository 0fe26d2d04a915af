package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qrauth/codehub/internal/model"
)

type pgUsageLedgerRepository struct {
	db *gorm.DB
}

// Get returns the ledger as of now; accounts without a row get a zero ledger.
func (r *pgUsageLedgerRepository) Get(ctx context.Context, ownerID uuid.UUID, now time.Time) (*model.UsageLedger, error) {
	var ledger model.UsageLedger
	err := r.db.WithContext(ctx).First(&ledger, "owner_id = ?", ownerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		ledger = model.UsageLedger{OwnerID: ownerID}
	} else if err != nil {
		return nil, err
	}
	ledger.Roll(now)
	return &ledger, nil
}

func (r *pgUsageLedgerRepository) Lock(ctx context.Context, ownerID uuid.UUID, now time.Time) (*model.UsageLedger, error) {
	db := r.db.WithContext(ctx)
	seed := model.UsageLedger{OwnerID: ownerID, Period: model.PeriodOf(now)}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, err
	}

	var ledger model.UsageLedger
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&ledger, "owner_id = ?", ownerID).Error; err != nil {
		return nil, err
	}
	ledger.Roll(now)
	return &ledger, nil
}

func (r *pgUsageLedgerRepository) Increment(ctx context.Context, ownerID uuid.UUID, n int64, now time.Time) (*model.UsageLedger, error) {
	ledger, err := r.Lock(ctx, ownerID, now)
	if err != nil {
		return nil, err
	}
	ledger.LifetimeCreated += n
	ledger.MonthlyCreated += n
	if err := r.saveCounters(ctx, ledger); err != nil {
		return nil, err
	}
	return ledger, nil
}

// Decrement subtracts from both counters. Nothing is written when either would go negative.
func (r *pgUsageLedgerRepository) Decrement(ctx context.Context, ownerID uuid.UUID, lifetime, monthly int64, now time.Time) (*model.UsageLedger, error) {
	ledger, err := r.Lock(ctx, ownerID, now)
	if err != nil {
		return nil, err
	}
	if ledger.LifetimeCreated < lifetime {
		return nil, &LimitUnderflowError{OwnerID: ownerID, Counter: "lifetime_created", Current: ledger.LifetimeCreated, Decrease: lifetime}
	}
	if ledger.MonthlyCreated < monthly {
		return nil, &LimitUnderflowError{OwnerID: ownerID, Counter: "monthly_created", Current: ledger.MonthlyCreated, Decrease: monthly}
	}
	ledger.LifetimeCreated -= lifetime
	ledger.MonthlyCreated -= monthly
	if err := r.saveCounters(ctx, ledger); err != nil {
		return nil, err
	}
	return ledger, nil
}

func (r *pgUsageLedgerRepository) SetLimits(ctx context.Context, ownerID uuid.UUID, lifetimeLimit, monthlyLimit int64, now time.Time) error {
	if _, err := r.Lock(ctx, ownerID, now); err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&model.UsageLedger{}).
		Where("owner_id = ?", ownerID).
		Updates(map[string]interface{}{
			"lifetime_limit": lifetimeLimit,
			"monthly_limit":  monthlyLimit,
		}).Error
}

func (r *pgUsageLedgerRepository) saveCounters(ctx context.Context, ledger *model.UsageLedger) error {
	return r.db.WithContext(ctx).
		Model(&model.UsageLedger{}).
		Where("owner_id = ?", ledger.OwnerID).
		Updates(map[string]interface{}{
			"lifetime_created": ledger.LifetimeCreated,
			"monthly_created":  ledger.MonthlyCreated,
			"period":           ledger.Period,
		}).Error
}
