package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
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
	DefaultMaxBatchSize = 1000
	idempotencyPrefix   = "codehub:idem:generate:"
)

// PayloadCodec encrypts the product identifier embedded in each code.
type PayloadCodec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// ImageRenderer draws the scannable image for a verification URL.
type ImageRenderer interface {
	Render(payloadURL string, opts render.Options) ([]byte, error)
}

type GeneratorConfig struct {
	VerificationBaseURL string
	Templates           map[string]render.Options
	DefaultTemplate     string
	MaxBatchSize        int
	IdempotencyTTL      time.Duration
	Limits              Limits
}

// Limits are plan defaults applied when a ledger row carries no explicit limit.
// Zero means unlimited.
type Limits struct {
	Lifetime int64
	Monthly  int64
}

// GenerateRequest describes one batch. Exactly one of ProductID (with Quantity)
// or ProductIDs must be set.
type GenerateRequest struct {
	ProductID       string   `json:"product_id" validate:"max=256"`
	Quantity        int      `json:"quantity"`
	ProductIDs      []string `json:"product_ids" validate:"omitempty,dive,max=256"`
	Template        string   `json:"template" validate:"max=64"`
	HeaderText      string   `json:"header_text" validate:"max=256"`
	InstructionText string   `json:"instruction_text" validate:"max=512"`
	WebsiteURL      string   `json:"website_url" validate:"omitempty,url,max=512"`
	FooterText      string   `json:"footer_text" validate:"max=256"`
	DirectionRTL    bool     `json:"direction_rtl"`
	IdempotencyKey  string   `json:"-" validate:"max=128"`
}

// ItemFailure reports a batch item that was skipped.
type ItemFailure struct {
	Index     int    `json:"index"`
	ProductID string `json:"product_id"`
	Error     string `json:"error"`
}

type GenerateResult struct {
	Codes    []model.QRCode `json:"codes"`
	Skipped  []ItemFailure  `json:"skipped,omitempty"`
	Replayed bool           `json:"replayed,omitempty"`
}

type GeneratorService interface {
	Generate(ctx context.Context, ownerID uuid.UUID, req GenerateRequest) (*GenerateResult, error)
}

type generatorService struct {
	store    repository.Store
	state    repository.StateStore
	locker   *BatchLocker
	codec    PayloadCodec
	renderer ImageRenderer
	metrics  *metrics.Metrics
	logger   *zap.Logger
	cfg      GeneratorConfig
	baseURL  *url.URL
	now      func() time.Time
}

func NewGeneratorService(
	cfg GeneratorConfig,
	store repository.Store,
	state repository.StateStore,
	locker *BatchLocker,
	codec PayloadCodec,
	renderer ImageRenderer,
	m *metrics.Metrics,
	logger *zap.Logger,
) (GeneratorService, error) {
	base, err := url.Parse(cfg.VerificationBaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid verification base url %q", cfg.VerificationBaseURL)
	}
	if _, ok := cfg.Templates[cfg.DefaultTemplate]; !ok {
		return nil, fmt.Errorf("default template %q is not defined", cfg.DefaultTemplate)
	}
	if cfg.MaxBatchSize <= 0 || cfg.MaxBatchSize > DefaultMaxBatchSize {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	return &generatorService{
		store:    store,
		state:    state,
		locker:   locker,
		codec:    codec,
		renderer: renderer,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
		baseURL:  base,
		now:      time.Now,
	}, nil
}

func (s *generatorService) Generate(ctx context.Context, ownerID uuid.UUID, req GenerateRequest) (*GenerateResult, error) {
	products, err := s.resolveProducts(req)
	if err != nil {
		return nil, err
	}
	templateName := req.Template
	if templateName == "" {
		templateName = s.cfg.DefaultTemplate
	}
	opts, ok := s.cfg.Templates[templateName]
	if !ok {
		return nil, fmt.Errorf("%w: unknown template %q", ErrValidation, templateName)
	}
	req.Template = templateName

	release, err := s.locker.Acquire(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer release()

	if req.IdempotencyKey != "" {
		if res, err := s.replay(ctx, ownerID, req.IdempotencyKey); err != nil || res != nil {
			return res, err
		}
	}

	now := s.now().UTC()
	codes, skipped, err := s.build(ownerID, products, opts, req, now)
	if err != nil {
		return nil, err
	}
	s.metrics.RenderFailed(len(skipped))
	if len(codes) == 0 {
		return nil, fmt.Errorf("%w: every item in the batch failed to render", ErrRender)
	}

	if err := s.commit(ctx, ownerID, codes, now); err != nil {
		return nil, err
	}
	s.metrics.Generated(len(codes))
	s.logger.Info("qr code batch generated",
		zap.String("owner_id", ownerID.String()),
		zap.Int("count", len(codes)),
		zap.Int("skipped", len(skipped)),
		zap.Int64("first_sequence", codes[0].SequentialNumber),
		zap.Int64("last_sequence", codes[len(codes)-1].SequentialNumber),
	)

	if req.IdempotencyKey != "" {
		s.remember(ctx, ownerID, req.IdempotencyKey, codes)
	}
	return &GenerateResult{Codes: codes, Skipped: skipped}, nil
}

// resolveProducts expands the request into the ordered list of identifiers to encode.
func (s *generatorService) resolveProducts(req GenerateRequest) ([]string, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	limit := s.cfg.MaxBatchSize
	single := strings.TrimSpace(req.ProductID)

	bulk := make([]string, 0, len(req.ProductIDs))
	for _, p := range req.ProductIDs {
		if p = strings.TrimSpace(p); p != "" {
			bulk = append(bulk, p)
		}
	}

	switch {
	case single != "" && len(bulk) > 0:
		return nil, fmt.Errorf("%w: set either product_id or product_ids, not both", ErrValidation)
	case single != "":
		if req.Quantity < 1 || req.Quantity > limit {
			return nil, fmt.Errorf("%w: quantity must be between 1 and %d", ErrValidation, limit)
		}
		out := make([]string, req.Quantity)
		for i := range out {
			out[i] = single
		}
		return out, nil
	case len(bulk) == 0:
		return nil, fmt.Errorf("%w: no product identifiers given", ErrValidation)
	case len(bulk) > limit:
		return nil, fmt.Errorf("%w: at most %d product identifiers per batch, got %d", ErrValidation, limit, len(bulk))
	default:
		return bulk, nil
	}
}

// build prepares fully populated records except for their sequential numbers.
// Items whose image fails to render are skipped and reported.
func (s *generatorService) build(ownerID uuid.UUID, products []string, opts render.Options, req GenerateRequest, now time.Time) ([]model.QRCode, []ItemFailure, error) {
	codes := make([]model.QRCode, 0, len(products))
	var skipped []ItemFailure

	for i, product := range products {
		id := uuid.New()
		payload, err := s.codec.Encrypt(product)
		if err != nil {
			return nil, nil, fmt.Errorf("item %d: %w", i, err)
		}
		verifyURL := s.baseURL.JoinPath(id.String()).String()

		png, err := s.renderer.Render(verifyURL, opts)
		if err != nil {
			s.logger.Warn("skipping batch item", zap.Int("index", i), zap.Error(err))
			skipped = append(skipped, ItemFailure{Index: i, ProductID: product, Error: err.Error()})
			continue
		}

		codes = append(codes, model.QRCode{
			ID:               id,
			OwnerID:          ownerID,
			EncryptedPayload: payload,
			VerificationURL:  verifyURL,
			RenderedImage:    export.DataURI(png),
			IsEnabled:        true,
			Template:         req.Template,
			HeaderText:       req.HeaderText,
			InstructionText:  req.InstructionText,
			WebsiteURL:       req.WebsiteURL,
			FooterText:       req.FooterText,
			DirectionRTL:     req.DirectionRTL,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}
	return codes, skipped, nil
}

// commit assigns sequential numbers and persists records, counter and ledger in one transaction.
func (s *generatorService) commit(ctx context.Context, ownerID uuid.UUID, codes []model.QRCode, now time.Time) error {
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		current, err := tx.Sequences().Lock(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("lock sequence: %w", err)
		}
		ledger, err := tx.Ledgers().Lock(ctx, ownerID, now)
		if err != nil {
			return fmt.Errorf("lock ledger: %w", err)
		}
		if !s.cfg.Limits.apply(ledger).Allows(int64(len(codes))) {
			return ErrQuotaExceeded
		}

		seq := allocateSequence(current, len(codes))
		for i := range codes {
			codes[i].SequentialNumber = seq[i]
		}
		if err := tx.QRCodes().CreateBatch(ctx, codes); err != nil {
			return fmt.Errorf("insert codes: %w", err)
		}
		if err := tx.Sequences().Advance(ctx, ownerID, seq[len(seq)-1]); err != nil {
			return fmt.Errorf("advance sequence: %w", err)
		}
		if _, err := tx.Ledgers().Increment(ctx, ownerID, int64(len(codes)), now); err != nil {
			return fmt.Errorf("increment ledger: %w", err)
		}
		return nil
	})
	if err == nil {
		return nil
	}
	for i := range codes {
		codes[i].SequentialNumber = 0
	}
	if errors.Is(err, ErrQuotaExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

func (s *generatorService) replay(ctx context.Context, ownerID uuid.UUID, key string) (*GenerateResult, error) {
	raw, err := s.state.Get(ctx, idempotencyPrefix+ownerID.String()+":"+key)
	if err != nil {
		return nil, fmt.Errorf("%w: read idempotency key: %w", ErrPersistence, err)
	}
	if raw == nil {
		return nil, nil
	}
	var ids []uuid.UUID
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("%w: decode idempotency key: %w", ErrPersistence, err)
	}

	res := &GenerateResult{Replayed: true, Codes: make([]model.QRCode, 0, len(ids))}
	for _, id := range ids {
		code, err := s.store.QRCodes().GetByID(ctx, ownerID, id)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		res.Codes = append(res.Codes, *code)
	}
	return res, nil
}

func (s *generatorService) remember(ctx context.Context, ownerID uuid.UUID, key string, codes []model.QRCode) {
	ids := make([]uuid.UUID, len(codes))
	for i := range codes {
		ids[i] = codes[i].ID
	}
	raw, err := json.Marshal(ids)
	if err == nil {
		err = s.state.Set(ctx, idempotencyPrefix+ownerID.String()+":"+key, raw, s.cfg.IdempotencyTTL)
	}
	if err != nil {
		s.logger.Warn("failed to store idempotency key", zap.String("owner_id", ownerID.String()), zap.Error(err))
	}
}

// apply fills ledger limits left at zero with the plan defaults.
func (l Limits) apply(ledger *model.UsageLedger) *model.UsageLedger {
	eff := *ledger
	if eff.LifetimeLimit == 0 {
		eff.LifetimeLimit = l.Lifetime
	}
	if eff.MonthlyLimit == 0 {
		eff.MonthlyLimit = l.Monthly
	}
	return &eff
}
