package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qrauth/codehub/internal/model"
)

const insertChunkSize = 100

type pgQRCodeRepository struct {
	db *gorm.DB
}

func (r *pgQRCodeRepository) GetByID(ctx context.Context, ownerID, id uuid.UUID) (*model.QRCode, error) {
	var code model.QRCode
	err := r.db.WithContext(ctx).First(&code, "id = ? AND owner_id = ?", id, ownerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &code, nil
}

// GetMany loads the owner's codes among ids in one query. Missing ids are simply absent.
func (r *pgQRCodeRepository) GetMany(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID) ([]model.QRCode, error) {
	var codes []model.QRCode
	if len(ids) == 0 {
		return codes, nil
	}
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND id IN ?", ownerID, ids).
		Order("sequential_number ASC").
		Find(&codes).Error
	return codes, err
}

func (r *pgQRCodeRepository) List(ctx context.Context, ownerID uuid.UUID, filter ListFilter) ([]model.QRCode, error) {
	q := r.db.WithContext(ctx).Where("owner_id = ?", ownerID)

	if query := strings.TrimSpace(filter.Query); query != "" {
		like := "%" + strings.ToLower(query) + "%"
		cond := "LOWER(CAST(id AS TEXT)) LIKE ? OR CAST(sequential_number AS TEXT) LIKE ? OR LOWER(website_url) LIKE ?"
		args := []interface{}{like, like, like}
		// Users often search the zero-padded display number.
		if n, err := strconv.ParseInt(query, 10, 64); err == nil {
			cond += " OR sequential_number = ?"
			args = append(args, n)
		}
		q = q.Where("("+cond+")", args...)
	}
	if filter.Enabled != nil {
		q = q.Where("is_enabled = ?", *filter.Enabled)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var codes []model.QRCode
	if err := q.Order("sequential_number DESC").Find(&codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

func (r *pgQRCodeRepository) CreateBatch(ctx context.Context, codes []model.QRCode) error {
	if len(codes) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(codes, insertChunkSize).Error
}

func (r *pgQRCodeRepository) Update(ctx context.Context, code *model.QRCode) error {
	res := r.db.WithContext(ctx).
		Model(&model.QRCode{}).
		Where("id = ? AND owner_id = ?", code.ID, code.OwnerID).
		Updates(map[string]interface{}{
			"is_enabled":       code.IsEnabled,
			"template":         code.Template,
			"header_text":      code.HeaderText,
			"instruction_text": code.InstructionText,
			"website_url":      code.WebsiteURL,
			"footer_text":      code.FooterText,
			"direction_rtl":    code.DirectionRTL,
			"rendered_image":   code.RenderedImage,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgQRCodeRepository) SetEnabled(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID, enabled bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&model.QRCode{}).
		Where("owner_id = ? AND id IN ?", ownerID, ids).
		Update("is_enabled", enabled)
	return res.RowsAffected, res.Error
}

func (r *pgQRCodeRepository) ExistingIDs(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	var found []uuid.UUID
	if len(ids) == 0 {
		return found, nil
	}
	err := r.db.WithContext(ctx).
		Model(&model.QRCode{}).
		Where("owner_id = ? AND id IN ?", ownerID, ids).
		Pluck("id", &found).Error
	return found, err
}

func (r *pgQRCodeRepository) Delete(ctx context.Context, ownerID, id uuid.UUID) (*model.QRCode, error) {
	removed, err := r.DeleteMany(ctx, ownerID, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(removed) == 0 {
		return nil, ErrNotFound
	}
	return &removed[0], nil
}

// DeleteMany hard-deletes the owner's codes among ids and returns the rows the
// statement itself removed. Rows a concurrent delete got to first are not returned.
func (r *pgQRCodeRepository) DeleteMany(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID) ([]model.QRCode, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var removed []model.QRCode
	err := r.db.WithContext(ctx).
		Clauses(clause.Returning{Columns: []clause.Column{
			{Name: "id"}, {Name: "owner_id"}, {Name: "sequential_number"}, {Name: "created_at"},
		}}).
		Where("owner_id = ? AND id IN ?", ownerID, ids).
		Delete(&removed).Error
	if err != nil {
		return nil, err
	}
	return removed, nil
}
