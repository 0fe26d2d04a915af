package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrauth/codehub/internal/repository"
)

func TestBatchLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("Should reject a second holder until released", func(t *testing.T) {
		locker := NewBatchLocker(repository.NewMemoryStateStore(), time.Minute, 50*time.Millisecond)
		owner := uuid.New()

		release, err := locker.Acquire(ctx, owner)
		require.NoError(t, err)

		_, err = locker.Acquire(ctx, owner)
		assert.ErrorIs(t, err, ErrBatchBusy)

		release()
		release2, err := locker.Acquire(ctx, owner)
		require.NoError(t, err)
		release2()
	})

	t.Run("Should lock accounts independently", func(t *testing.T) {
		locker := NewBatchLocker(repository.NewMemoryStateStore(), time.Minute, 50*time.Millisecond)
		r1, err := locker.Acquire(ctx, uuid.New())
		require.NoError(t, err)
		defer r1()
		r2, err := locker.Acquire(ctx, uuid.New())
		require.NoError(t, err)
		defer r2()
	})

	t.Run("Should wait for a lock released meanwhile", func(t *testing.T) {
		locker := NewBatchLocker(repository.NewMemoryStateStore(), time.Minute, 2*time.Second)
		owner := uuid.New()
		release, err := locker.Acquire(ctx, owner)
		require.NoError(t, err)

		go func() {
			time.Sleep(100 * time.Millisecond)
			release()
		}()
		release2, err := locker.Acquire(ctx, owner)
		require.NoError(t, err)
		release2()
	})

	t.Run("Should not release a lock taken over after expiry", func(t *testing.T) {
		state := repository.NewMemoryStateStore()
		locker := NewBatchLocker(state, 20*time.Millisecond, 50*time.Millisecond)
		owner := uuid.New()

		stale, err := locker.Acquire(ctx, owner)
		require.NoError(t, err)
		time.Sleep(40 * time.Millisecond)

		fresh, err := NewBatchLocker(state, time.Minute, 50*time.Millisecond).Acquire(ctx, owner)
		require.NoError(t, err)
		stale()

		v, err := state.Get(ctx, batchLockPrefix+owner.String())
		require.NoError(t, err)
		assert.NotNil(t, v)
		fresh()
	})
}
