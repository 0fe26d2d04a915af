package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qrauth/codehub/internal/model"
)

type pgSequenceRepository struct {
	db *gorm.DB
}

func (r *pgSequenceRepository) Lock(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.SequenceCounter{OwnerID: ownerID}).Error; err != nil {
		return 0, err
	}

	var counter model.SequenceCounter
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&counter, "owner_id = ?", ownerID).Error; err != nil {
		return 0, err
	}
	return counter.LastValue, nil
}

func (r *pgSequenceRepository) Advance(ctx context.Context, ownerID uuid.UUID, value int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.SequenceCounter{}).
		Where("owner_id = ? AND last_value < ?", ownerID, value).
		Update("last_value", value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSequenceRewind
	}
	return nil
}
