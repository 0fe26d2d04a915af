package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"qrauth/codehub/internal/export"
	"qrauth/codehub/internal/model"
	"qrauth/codehub/internal/repository"
)

func TestNewGeneratorService(t *testing.T) {
	f := newFixture(t)

	t.Run("Should reject a relative verification url", func(t *testing.T) {
		_, err := NewGeneratorService(GeneratorConfig{
			VerificationBaseURL: "/v/",
			Templates:           testTemplates(),
			DefaultTemplate:     "classic",
		}, f.store, f.state, f.locker, f.codec, f.renderer, nil, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("Should reject an undefined default template", func(t *testing.T) {
		_, err := NewGeneratorService(GeneratorConfig{
			VerificationBaseURL: testBaseURL,
			Templates:           testTemplates(),
			DefaultTemplate:     "missing",
		}, f.store, f.state, f.locker, f.codec, f.renderer, nil, zap.NewNop())
		assert.Error(t, err)
	})
}

func TestGeneratorService_Generate(t *testing.T) {
	ctx := context.Background()

	t.Run("Should number a single product batch from one", func(t *testing.T) {
		f := newFixture(t)
		owner := uuid.New()

		res, err := f.gen.Generate(ctx, owner, GenerateRequest{ProductID: "SKU-1", Quantity: 3})
		require.NoError(t, err)
		require.Len(t, res.Codes, 3)
		assert.Empty(t, res.Skipped)

		for i, c := range res.Codes {
			assert.Equal(t, int64(i+1), c.SequentialNumber)
			assert.Equal(t, owner, c.OwnerID)
			assert.True(t, c.IsEnabled)
			assert.False(t, c.IsScanned)
			assert.Nil(t, c.ScannedAt)
			assert.Equal(t, "classic", c.Template)
			assert.Equal(t, testBaseURL+c.ID.String(), c.VerificationURL)

			product, err := f.codec.Decrypt(c.EncryptedPayload)
			require.NoError(t, err)
			assert.Equal(t, "SKU-1", product)
			assert.NotContains(t, c.EncryptedPayload, "SKU-1")

			png, err := export.DecodeDataURI(c.RenderedImage)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(string(png), "\x89PNG"))
		}

		stored := f.all(t, owner)
		assert.Len(t, stored, 3)

		l := f.ledger(t, owner)
		assert.Equal(t, int64(3), l.LifetimeCreated)
		assert.Equal(t, int64(3), l.MonthlyCreated)
		assert.Equal(t, "2026-10", l.Period)
	})

	t.Run("Should continue numbering across batches", func(t *testing.T) {
		f := newFixture(t)
		owner := uuid.New()

		_, err := f.gen.Generate(ctx, owner, GenerateRequest{ProductID: "SKU-1", Quantity: 2})
		require.NoError(t, err)
		res, err := f.gen.Generate(ctx, owner, GenerateRequest{ProductIDs: []string{"A", "B"}})
		require.NoError(t, err)
		assert.Equal(t, int64(3), res.Codes[0].SequentialNumber)
		assert.Equal(t, int64(4), res.Codes[1].SequentialNumber)

		other, err := f.gen.Generate(ctx, uuid.New(), GenerateRequest{ProductID: "SKU-1", Quantity: 1})
		require.NoError(t, err)
		assert.Equal(t, int64(1), other.Codes[0].SequentialNumber)
	})

	t.Run("Should keep bulk order and drop blank entries", func(t *testing.T) {
		f := newFixture(t)
		owner := uuid.New()
		products := []string{"P-1", " ", "P-2", "P-3 ", "", "P-4", "P-5"}

		res, err := f.gen.Generate(ctx, owner, GenerateRequest{
			ProductIDs:   products,
			Template:     "brand",
			HeaderText:   "Genuine",
			WebsiteURL:   "https://brand.example",
			DirectionRTL: true,
		})
		require.NoError(t, err)
		require.Len(t, res.Codes, 5)

		ids := map[uuid.UUID]bool{}
		for i, c := range res.Codes {
			product, err := f.codec.Decrypt(c.EncryptedPayload)
			require.NoError(t, err)
			assert.Equal(t, []string{"P-1", "P-2", "P-3", "P-4", "P-5"}[i], product)
			assert.Equal(t, int64(i+1), c.SequentialNumber)
			assert.Equal(t, "brand", c.Template)
			assert.Equal(t, "Genuine", c.HeaderText)
			assert.True(t, c.DirectionRTL)
			ids[c.ID] = true
		}
		assert.Len(t, ids, 5)
		assert.Equal(t, int64(5), f.ledger(t, owner).LifetimeCreated)
	})

	t.Run("Should reject invalid requests without side effects", func(t *testing.T) {
		f := newFixture(t)
		owner := uuid.New()

		cases := map[string]GenerateRequest{
			"zero quantity":    {ProductID: "SKU-1", Quantity: 0},
			"over limit":       {ProductID: "SKU-1", Quantity: 1001},
			"empty":            {},
			"only blanks":      {ProductIDs: []string{" ", ""}},
			"both modes":       {ProductID: "SKU-1", Quantity: 1, ProductIDs: []string{"A"}},
			"unknown template": {ProductID: "SKU-1", Quantity: 1, Template: "neon"},
			"bad website":      {ProductID: "SKU-1", Quantity: 1, WebsiteURL: "not a url"},
			"long header":      {ProductID: "SKU-1", Quantity: 1, HeaderText: strings.Repeat("x", 257)},
		}
		for name, req := range cases {
			_, err := f.gen.Generate(ctx, owner, req)
			assert.ErrorIs(t, err, ErrValidation, name)
		}

		bulk := make([]string, 1001)
		for i := range bulk {
			bulk[i] = "P"
		}
		_, err := f.gen.Generate(ctx, owner, GenerateRequest{ProductIDs: bulk})
		assert.ErrorIs(t, err, ErrValidation)

		assert.Empty(t, f.all(t, owner))
		assert.Zero(t, f.ledger(t, owner).LifetimeCreated)
		assert.Zero(t, f.renderer.calls)

		res, err := f.gen.Generate(ctx, owner, GenerateRequest{ProductID: "SKU-1", Quantity: 1})
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Codes[0].SequentialNumber)
	})

	t.Run("Should ignore a blank bulk list next to a single product", func(t *testing.T) {
		f := newFixture(t)
		owner := uuid.New()

		res, err := f.gen.Generate(ctx, owner, GenerateRequest{ProductID: "SKU-2", Quantity: 2, ProductIDs: []string{"", "  "}})
		require.NoError(t, err)
		require.Len(t, res.Codes, 2)
		assert.Equal(t, int64(1), res.Codes[0].SequentialNumber)
		assert.Equal(t, int64(2), f.ledger(t, owner).LifetimeCreated)
	})

	t.Run("Should honour a smaller configured batch size", func(t *testing.T) {
		f := newFixture(t, func(c *GeneratorConfig) { c.MaxBatchSize = 2 })
		_, err := f.gen.Generate(ctx, uuid.New(), GenerateRequest{ProductID: "SKU-1", Quantity: 3})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("Should skip items that fail to render and number the rest contiguously", func(t *testing.T) {
		f := newFixture(t)
		f.renderer.failOn = map[int]bool{1: true}
		owner := uuid.New()

		res, err := f.gen.Generate(ctx, owner, GenerateRequest{ProductIDs: []string{"A", "B", "C"}})
		require.NoError(t, err)
		require.Len(t, res.Codes, 2)
		require.Len(t, res.Skipped, 1)
		assert.Equal(t, 1, res.Skipped[0].Index)
		assert.Equal(t, "B", res.Skipped[0].ProductID)
		assert.Equal(t, int64(1), res.Codes[0].SequentialNumber)
		assert.Equal(t, int64(2), res.Codes[1].SequentialNumber)
		assert.Equal(t, int64(2), f.ledger(t, owner).LifetimeCreated)
	})

	t.Run("Should fail when every item fails to render", func(t *testing.T) {
		f := newFixture(t)
		f.renderer.failAll = true
		owner := uuid.New()

		_, err := f.gen.Generate(ctx, owner, GenerateRequest{ProductID: "SKU-1", Quantity: 2})
		assert.ErrorIs(t, err, ErrRender)
		assert.Empty(t, f.all(t, owner))
		assert.Zero(t, f.ledger(t, owner).LifetimeCreated)
	})

	t.Run("Should roll back records and counter when the ledger write fails", func(t *testing.T) {
		f := newFixture(t)
		owner := uuid.New()
		broken := *f.gen
		broken.store = &failingStore{Store: f.store}

		_, err := broken.Generate(ctx, owner, GenerateRequest{ProductID: "SKU-1", Quantity: 3})
		assert.ErrorIs(t, err, ErrPersistence)
		assert.Empty(t, f.all(t, owner))
		assert.Zero(t, f.ledger(t, owner).LifetimeCreated)

		res, err := f.gen.Generate(ctx, owner, GenerateRequest{ProductID: "SKU-1", Quantity: 1})
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Codes[0].SequentialNumber)
	})

	t.Run("Should refuse batches over the usage limit", func(t *testing.T) {
		f := newFixture(t, func(c *GeneratorConfig) { c.Limits = Limits{Lifetime: 5} })
		owner := uuid.New()

		_, err := f.gen.Generate(ctx, owner, GenerateRequest{ProductID: "SKU-1", Quantity: 3})
		require.NoError(t, err)
		_, err = f.gen.Generate(ctx, owner, GenerateRequest{ProductID: "SKU-1", Quantity: 3})
		assert.ErrorIs(t, err, ErrQuotaExceeded)
		assert.Len(t, f.all(t, owner), 3)

		_, err = f.gen.Generate(ctx, owner, GenerateRequest{ProductID: "SKU-1", Quantity: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(5), f.ledger(t, owner).LifetimeCreated)
	})

	t.Run("Should prefer account limits over plan defaults", func(t *testing.T) {
		f := newFixture(t, func(c *GeneratorConfig) { c.Limits = Limits{Monthly: 100} })
		owner := uuid.New()
		require.NoError(t, f.store.Transaction(ctx, func(tx repository.Store) error {
			return tx.Ledgers().SetLimits(ctx, owner, 0, 1, testNow)
		}))

		_, err := f.gen.Generate(ctx, owner, GenerateRequest{ProductID: "SKU-1", Quantity: 2})
		assert.ErrorIs(t, err, ErrQuotaExceeded)
	})

	t.Run("Should replay a batch for a repeated idempotency key", func(t *testing.T) {
		f := newFixture(t)
		owner := uuid.New()
		req := GenerateRequest{ProductID: "SKU-1", Quantity: 2, IdempotencyKey: "order-77"}

		first, err := f.gen.Generate(ctx, owner, req)
		require.NoError(t, err)
		second, err := f.gen.Generate(ctx, owner, req)
		require.NoError(t, err)

		assert.False(t, first.Replayed)
		assert.True(t, second.Replayed)
		require.Len(t, second.Codes, 2)
		assert.Equal(t, first.Codes[0].ID, second.Codes[0].ID)
		assert.Equal(t, first.Codes[1].ID, second.Codes[1].ID)
		assert.Len(t, f.all(t, owner), 2)
		assert.Equal(t, int64(2), f.ledger(t, owner).LifetimeCreated)

		other, err := f.gen.Generate(ctx, uuid.New(), req)
		require.NoError(t, err)
		assert.False(t, other.Replayed)
	})

	t.Run("Should report a busy account while another batch holds the lock", func(t *testing.T) {
		f := newFixture(t)
		owner := uuid.New()
		f.gen.locker = NewBatchLocker(f.state, time.Minute, 50*time.Millisecond)

		release, err := f.gen.locker.Acquire(ctx, owner)
		require.NoError(t, err)
		defer release()

		_, err = f.gen.Generate(ctx, owner, GenerateRequest{ProductID: "SKU-1", Quantity: 1})
		assert.ErrorIs(t, err, ErrBatchBusy)
	})

	t.Run("Should assign unique numbers to concurrent batches", func(t *testing.T) {
		f := newFixture(t)
		f.gen.locker = NewBatchLocker(f.state, time.Minute, 10*time.Second)
		owner := uuid.New()

		var wg sync.WaitGroup
		errs := make(chan error, 4)
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.gen.Generate(ctx, owner, GenerateRequest{ProductID: "SKU-1", Quantity: 3})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		seen := map[int64]bool{}
		for _, c := range f.all(t, owner) {
			assert.False(t, seen[c.SequentialNumber])
			seen[c.SequentialNumber] = true
		}
		for n := int64(1); n <= 12; n++ {
			assert.True(t, seen[n], "missing %s", model.FormatSequence(n))
		}
		assert.Equal(t, int64(12), f.ledger(t, owner).LifetimeCreated)
	})
}
