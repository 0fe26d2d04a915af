package service

import (
	"errors"

	"qrauth/codehub/internal/render"
	"qrauth/codehub/internal/repository"
	"qrauth/codehub/pkg/crypto"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrPersistence   = errors.New("persistence failed")
	ErrQuotaExceeded = errors.New("usage limit reached")
	ErrBatchBusy     = errors.New("another batch is in progress for this account")

	// Re-exported so callers can classify errors without importing lower layers.
	ErrNotFound       = repository.ErrNotFound
	ErrLimitUnderflow = repository.ErrLimitUnderflow
	ErrEncryption     = crypto.ErrEncryption
	ErrDecryption     = crypto.ErrDecryption
	ErrRender         = render.ErrRender
)
