package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qrauth/codehub/internal/export"
	"qrauth/codehub/internal/metrics"
	"qrauth/codehub/internal/model"
	"qrauth/codehub/internal/render"
	"qrauth/codehub/internal/repository"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// UpdateRequest changes presentation fields of one code. Nil fields are left as they are.
type UpdateRequest struct {
	Template        *string `json:"template" validate:"omitempty,max=64"`
	HeaderText      *string `json:"header_text" validate:"omitempty,max=256"`
	InstructionText *string `json:"instruction_text" validate:"omitempty,max=512"`
	WebsiteURL      *string `json:"website_url" validate:"omitempty,max=512"`
	FooterText      *string `json:"footer_text" validate:"omitempty,max=256"`
	DirectionRTL    *bool   `json:"direction_rtl"`
	IsEnabled       *bool   `json:"is_enabled"`
}

// ItemResult is the outcome for one id of a batch operation.
type ItemResult struct {
	ID    uuid.UUID `json:"id"`
	OK    bool      `json:"ok"`
	Error string    `json:"error,omitempty"`
}

type DeleteResult struct {
	Deleted []uuid.UUID        `json:"deleted"`
	Failed  []ItemResult       `json:"failed,omitempty"`
	Ledger  *model.UsageLedger `json:"ledger,omitempty"`
	Warning string             `json:"warning,omitempty"`
}

type QRCodeService interface {
	List(ctx context.Context, ownerID uuid.UUID, filter repository.ListFilter) ([]model.QRCode, error)
	Get(ctx context.Context, ownerID, id uuid.UUID) (*model.QRCode, error)
	GetMany(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID) ([]model.QRCode, []ItemResult, error)
	Update(ctx context.Context, ownerID, id uuid.UUID, req UpdateRequest) (*model.QRCode, error)
	ToggleEnabled(ctx context.Context, ownerID, id uuid.UUID) (*model.QRCode, error)
	SetEnabledMany(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID, enabled bool) ([]ItemResult, error)
	Delete(ctx context.Context, ownerID, id uuid.UUID) (*DeleteResult, error)
	DeleteMany(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID) (*DeleteResult, error)
	RevealProduct(ctx context.Context, ownerID, id uuid.UUID) (string, error)
	Usage(ctx context.Context, ownerID uuid.UUID) (*model.UsageLedger, error)
	SetLimits(ctx context.Context, ownerID uuid.UUID, req LimitsRequest) (*model.UsageLedger, error)
}

// LimitsRequest overrides plan defaults for one account. Zero falls back to the default.
type LimitsRequest struct {
	LifetimeLimit int64 `json:"lifetime_limit" validate:"gte=0"`
	MonthlyLimit  int64 `json:"monthly_limit" validate:"gte=0"`
}

type qrCodeService struct {
	store     repository.Store
	codec     PayloadCodec
	renderer  ImageRenderer
	templates map[string]render.Options
	limits    Limits
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewQRCodeService(
	templates map[string]render.Options,
	limits Limits,
	store repository.Store,
	codec PayloadCodec,
	renderer ImageRenderer,
	m *metrics.Metrics,
	logger *zap.Logger,
) QRCodeService {
	return &qrCodeService{
		store:     store,
		codec:     codec,
		renderer:  renderer,
		templates: templates,
		limits:    limits,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *qrCodeService) List(ctx context.Context, ownerID uuid.UUID, filter repository.ListFilter) ([]model.QRCode, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	codes, err := s.store.QRCodes().List(ctx, ownerID, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return codes, nil
}

func (s *qrCodeService) Get(ctx context.Context, ownerID, id uuid.UUID) (*model.QRCode, error) {
	code, err := s.store.QRCodes().GetByID(ctx, ownerID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return code, nil
}

// Update writes the full row back. A template change re-renders the image for the same URL.
func (s *qrCodeService) Update(ctx context.Context, ownerID, id uuid.UUID, req UpdateRequest) (*model.QRCode, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if req.WebsiteURL != nil && *req.WebsiteURL != "" {
		if err := validate.Var(*req.WebsiteURL, "url"); err != nil {
			return nil, fmt.Errorf("%w: website_url must be a url", ErrValidation)
		}
	}

	code, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if req.Template != nil && *req.Template != code.Template {
		opts, ok := s.templates[*req.Template]
		if !ok {
			return nil, fmt.Errorf("%w: unknown template %q", ErrValidation, *req.Template)
		}
		png, err := s.renderer.Render(code.VerificationURL, opts)
		if err != nil {
			return nil, err
		}
		code.Template = *req.Template
		code.RenderedImage = export.DataURI(png)
	}
	if req.HeaderText != nil {
		code.HeaderText = *req.HeaderText
	}
	if req.InstructionText != nil {
		code.InstructionText = *req.InstructionText
	}
	if req.WebsiteURL != nil {
		code.WebsiteURL = *req.WebsiteURL
	}
	if req.FooterText != nil {
		code.FooterText = *req.FooterText
	}
	if req.DirectionRTL != nil {
		code.DirectionRTL = *req.DirectionRTL
	}
	if req.IsEnabled != nil {
		code.IsEnabled = *req.IsEnabled
	}

	if err := s.save(ctx, code); err != nil {
		return nil, err
	}
	return code, nil
}

// ToggleEnabled flips the enabled flag. Concurrent toggles are last writer wins.
func (s *qrCodeService) ToggleEnabled(ctx context.Context, ownerID, id uuid.UUID) (*model.QRCode, error) {
	code, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	code.IsEnabled = !code.IsEnabled
	if err := s.save(ctx, code); err != nil {
		return nil, err
	}
	return code, nil
}

// GetMany loads codes in request order and reports the ids that were not found.
func (s *qrCodeService) GetMany(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID) ([]model.QRCode, []ItemResult, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil, fmt.Errorf("%w: no ids given", ErrValidation)
	}
	found, err := s.store.QRCodes().GetMany(ctx, ownerID, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	byID := make(map[uuid.UUID]model.QRCode, len(found))
	foundIDs := make([]uuid.UUID, len(found))
	for i := range found {
		byID[found[i].ID] = found[i]
		foundIDs[i] = found[i].ID
	}
	codes := make([]model.QRCode, 0, len(found))
	var missing []ItemResult
	for _, r := range collectResults(ids, foundIDs) {
		if r.OK {
			codes = append(codes, byID[r.ID])
		} else {
			missing = append(missing, r)
		}
	}
	return codes, missing, nil
}

func (s *qrCodeService) save(ctx context.Context, code *model.QRCode) error {
	err := s.store.QRCodes().Update(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// SetEnabledMany updates every id owned by the account in one statement and
// reports the ids that were not found.
func (s *qrCodeService) SetEnabledMany(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID, enabled bool) ([]ItemResult, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no ids given", ErrValidation)
	}

	var found []uuid.UUID
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		found, err = tx.QRCodes().ExistingIDs(ctx, ownerID, ids)
		if err != nil {
			return err
		}
		_, err = tx.QRCodes().SetEnabled(ctx, ownerID, found, enabled)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return collectResults(ids, found), nil
}

func (s *qrCodeService) Delete(ctx context.Context, ownerID, id uuid.UUID) (*DeleteResult, error) {
	res, err := s.DeleteMany(ctx, ownerID, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(res.Deleted) == 0 {
		return nil, ErrNotFound
	}
	return res, nil
}

// DeleteMany removes the codes, then gives their quota back to the ledger.
// The deletion stands even when the ledger refuses the decrement.
func (s *qrCodeService) DeleteMany(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID) (*DeleteResult, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no ids given", ErrValidation)
	}

	var removed []model.QRCode
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		removed, err = tx.QRCodes().DeleteMany(ctx, ownerID, ids)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	res := &DeleteResult{Deleted: make([]uuid.UUID, len(removed))}
	for i := range removed {
		res.Deleted[i] = removed[i].ID
	}
	for _, r := range collectResults(ids, res.Deleted) {
		if !r.OK {
			res.Failed = append(res.Failed, r)
		}
	}
	if len(removed) == 0 {
		return res, nil
	}
	s.metrics.Deleted(len(removed))
	s.logger.Info("qr codes deleted",
		zap.String("owner_id", ownerID.String()),
		zap.Int("count", len(removed)),
	)

	res.Ledger, res.Warning = s.releaseQuota(ctx, ownerID, removed)
	return res, nil
}

// releaseQuota decrements the ledger for removed codes. The monthly counter only
// covers codes created in the current period.
func (s *qrCodeService) releaseQuota(ctx context.Context, ownerID uuid.UUID, removed []model.QRCode) (*model.UsageLedger, string) {
	now := s.now().UTC()
	period := model.PeriodOf(now)
	lifetime := int64(len(removed))
	var monthly int64
	for i := range removed {
		if model.PeriodOf(removed[i].CreatedAt) == period {
			monthly++
		}
	}

	var ledger *model.UsageLedger
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		ledger, err = tx.Ledgers().Decrement(ctx, ownerID, lifetime, monthly, now)
		return err
	})
	if err == nil {
		return s.limits.apply(ledger), ""
	}

	var underflow *repository.LimitUnderflowError
	if errors.As(err, &underflow) {
		s.metrics.LedgerUnderflow()
		s.logger.Warn("usage ledger underflow, counters left unchanged",
			zap.String("owner_id", ownerID.String()),
			zap.String("counter", underflow.Counter),
			zap.Int64("current", underflow.Current),
			zap.Int64("decrease", underflow.Decrease),
		)
	} else {
		s.logger.Error("failed to decrement usage ledger",
			zap.String("owner_id", ownerID.String()),
			zap.Int64("lifetime", lifetime),
			zap.Int64("monthly", monthly),
			zap.Error(err),
		)
	}

	current, getErr := s.store.Ledgers().Get(ctx, ownerID, now)
	if getErr != nil {
		return nil, err.Error()
	}
	return s.limits.apply(current), err.Error()
}

// RevealProduct decrypts the product identifier of a code for audit.
func (s *qrCodeService) RevealProduct(ctx context.Context, ownerID, id uuid.UUID) (string, error) {
	code, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return "", err
	}
	product, err := s.codec.Decrypt(code.EncryptedPayload)
	if err != nil {
		s.logger.Warn("failed to decrypt payload", zap.String("code_id", id.String()), zap.Error(err))
		return "", err
	}
	return product, nil
}

// Usage returns the ledger with plan defaults filled in.
func (s *qrCodeService) Usage(ctx context.Context, ownerID uuid.UUID) (*model.UsageLedger, error) {
	ledger, err := s.store.Ledgers().Get(ctx, ownerID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return s.limits.apply(ledger), nil
}

func (s *qrCodeService) SetLimits(ctx context.Context, ownerID uuid.UUID, req LimitsRequest) (*model.UsageLedger, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		return tx.Ledgers().SetLimits(ctx, ownerID, req.LifetimeLimit, req.MonthlyLimit, now)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.logger.Info("usage limits updated",
		zap.String("owner_id", ownerID.String()),
		zap.Int64("lifetime_limit", req.LifetimeLimit),
		zap.Int64("monthly_limit", req.MonthlyLimit),
	)
	return s.Usage(ctx, ownerID)
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// collectResults reports one outcome per requested id, in request order.
func collectResults(requested, found []uuid.UUID) []ItemResult {
	ok := make(map[uuid.UUID]struct{}, len(found))
	for _, id := range found {
		ok[id] = struct{}{}
	}
	out := make([]ItemResult, len(requested))
	for i, id := range requested {
		if _, hit := ok[id]; hit {
			out[i] = ItemResult{ID: id, OK: true}
		} else {
			out[i] = ItemResult{ID: id, Error: ErrNotFound.Error()}
		}
	}
	return out
}
