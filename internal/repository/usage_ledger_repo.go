package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"qrauth/codehub/internal/model"
)

// UsageLedgerRepository keeps per-account creation totals.
// Lock, Increment and Decrement lock the ledger row and must run inside a Store transaction.
type UsageLedgerRepository interface {
	Get(ctx context.Context, ownerID uuid.UUID, now time.Time) (*model.UsageLedger, error)
	Lock(ctx context.Context, ownerID uuid.UUID, now time.Time) (*model.UsageLedger, error)
	Increment(ctx context.Context, ownerID uuid.UUID, n int64, now time.Time) (*model.UsageLedger, error)
	Decrement(ctx context.Context, ownerID uuid.UUID, lifetime, monthly int64, now time.Time) (*model.UsageLedger, error)
	SetLimits(ctx context.Context, ownerID uuid.UUID, lifetimeLimit, monthlyLimit int64, now time.Time) error
}
