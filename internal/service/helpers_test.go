package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"qrauth/codehub/internal/model"
	"qrauth/codehub/internal/render"
	"qrauth/codehub/internal/repository"
	"qrauth/codehub/internal/testutil"
	"qrauth/codehub/pkg/crypto"
)

var testNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

const testBaseURL = "https://verify.example.com/v/"

type fixture struct {
	db       *gorm.DB
	store    repository.Store
	state    repository.StateStore
	locker   *BatchLocker
	codec    *crypto.Codec
	renderer *fakeRenderer
	gen      *generatorService
	codes    *qrCodeService
}

func testTemplates() map[string]render.Options {
	return map[string]render.Options{
		"classic": {Size: 128},
		"brand":   {Size: 160, ForegroundColor: "#1d3557", BackgroundColor: "#f1faee"},
	}
}

func newFixture(t *testing.T, configure ...func(*GeneratorConfig)) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	store := repository.NewPGStore(db)
	state := repository.NewMemoryStateStore()
	codec, err := crypto.NewCodec("service-test-secret", "")
	require.NoError(t, err)

	cfg := GeneratorConfig{
		VerificationBaseURL: testBaseURL,
		Templates:           testTemplates(),
		DefaultTemplate:     "classic",
		MaxBatchSize:        DefaultMaxBatchSize,
		IdempotencyTTL:      time.Hour,
	}
	for _, fn := range configure {
		fn(&cfg)
	}

	renderer := &fakeRenderer{inner: render.NewRenderer(zap.NewNop(), 64, 1024)}
	locker := NewBatchLocker(state, 30*time.Second, 2*time.Second)
	gen, err := NewGeneratorService(cfg, store, state, locker, codec, renderer, nil, zap.NewNop())
	require.NoError(t, err)
	g := gen.(*generatorService)
	g.now = func() time.Time { return testNow }

	codes := NewQRCodeService(cfg.Templates, cfg.Limits, store, codec, renderer, nil, zap.NewNop()).(*qrCodeService)
	codes.now = func() time.Time { return testNow }

	return &fixture{
		db:       db,
		store:    store,
		state:    state,
		locker:   locker,
		codec:    codec,
		renderer: renderer,
		gen:      g,
		codes:    codes,
	}
}

func (f *fixture) ledger(t *testing.T, owner uuid.UUID) *model.UsageLedger {
	t.Helper()
	l, err := f.store.Ledgers().Get(context.Background(), owner, testNow)
	require.NoError(t, err)
	return l
}

func (f *fixture) all(t *testing.T, owner uuid.UUID) []model.QRCode {
	t.Helper()
	codes, err := f.store.QRCodes().List(context.Background(), owner, repository.ListFilter{})
	require.NoError(t, err)
	return codes
}

// fakeRenderer delegates to the real renderer and fails the calls listed in failOn.
type fakeRenderer struct {
	inner   ImageRenderer
	mu      sync.Mutex
	calls   int
	failOn  map[int]bool
	failAll bool
}

func (r *fakeRenderer) Render(payloadURL string, opts render.Options) ([]byte, error) {
	r.mu.Lock()
	call := r.calls
	r.calls++
	fail := r.failAll || r.failOn[call]
	r.mu.Unlock()
	if fail {
		return nil, render.ErrRender
	}
	return r.inner.Render(payloadURL, opts)
}

// failingStore makes ledger increments fail inside transactions.
type failingStore struct {
	repository.Store
}

func (s *failingStore) Ledgers() repository.UsageLedgerRepository {
	return &failingLedgers{UsageLedgerRepository: s.Store.Ledgers()}
}

func (s *failingStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.Transaction(ctx, func(tx repository.Store) error {
		return fn(&failingStore{Store: tx})
	})
}

type failingLedgers struct {
	repository.UsageLedgerRepository
}

func (l *failingLedgers) Increment(context.Context, uuid.UUID, int64, time.Time) (*model.UsageLedger, error) {
	return nil, errors.New("disk full")
}
