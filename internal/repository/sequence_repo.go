package repository

import (
	"context"

	"github.com/google/uuid"
)

// SequenceRepository guards the per-account sequential number counter.
// Lock must run inside a Store transaction; the row stays locked until it ends.
type SequenceRepository interface {
	Lock(ctx context.Context, ownerID uuid.UUID) (int64, error)
	Advance(ctx context.Context, ownerID uuid.UUID, value int64) error
}
