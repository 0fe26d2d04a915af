package repository

import (
	"context"

	"github.com/google/uuid"

	"qrauth/codehub/internal/model"
)

// ListFilter narrows List results. Query matches id, sequential number and website URL.
type ListFilter struct {
	Query   string
	Enabled *bool
	Limit   int
	Offset  int
}

type QRCodeRepository interface {
	GetByID(ctx context.Context, ownerID, id uuid.UUID) (*model.QRCode, error)
	GetMany(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID) ([]model.QRCode, error)
	List(ctx context.Context, ownerID uuid.UUID, filter ListFilter) ([]model.QRCode, error)
	CreateBatch(ctx context.Context, codes []model.QRCode) error
	Update(ctx context.Context, code *model.QRCode) error
	SetEnabled(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID, enabled bool) (int64, error)
	ExistingIDs(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error)
	Delete(ctx context.Context, ownerID, id uuid.UUID) (*model.QRCode, error)
	DeleteMany(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID) ([]model.QRCode, error)
}
