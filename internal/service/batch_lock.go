package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"qrauth/codehub/internal/repository"
)

const batchLockPrefix = "codehub:lock:batch:"

// BatchLocker serializes generation batches per account across instances.
// The database row lock on the sequence counter remains the source of truth;
// this lock keeps a second batch from rendering while the first one commits.
type BatchLocker struct {
	state    repository.StateStore
	ttl      time.Duration
	wait     time.Duration
	interval time.Duration
}

func NewBatchLocker(state repository.StateStore, ttl, wait time.Duration) *BatchLocker {
	interval := wait / 20
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	return &BatchLocker{state: state, ttl: ttl, wait: wait, interval: interval}
}

// Acquire blocks up to the configured wait and returns a release func.
func (l *BatchLocker) Acquire(ctx context.Context, ownerID uuid.UUID) (func(), error) {
	key := batchLockPrefix + ownerID.String()
	token := []byte(uuid.NewString())

	backoff := retry.WithMaxDuration(l.wait, retry.NewConstant(l.interval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		ok, err := l.state.SetNX(ctx, key, token, l.ttl)
		if err != nil {
			return err
		}
		if !ok {
			return retry.RetryableError(ErrBatchBusy)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrBatchBusy) {
			return nil, ErrBatchBusy
		}
		return nil, err
	}

	release := func() {
		_, _ = l.state.CompareAndDelete(context.WithoutCancel(ctx), key, token)
	}
	return release, nil
}
