package repository

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrLimitUnderflow = errors.New("usage ledger underflow")
	ErrSequenceRewind = errors.New("sequence counter cannot move backwards")
)

// LimitUnderflowError reports a ledger decrement that would drive a counter negative.
type LimitUnderflowError struct {
	OwnerID  uuid.UUID
	Counter  string
	Current  int64
	Decrease int64
}

func (e *LimitUnderflowError) Error() string {
	return fmt.Sprintf("usage ledger underflow for %s: %s is %d, cannot subtract %d",
		e.OwnerID, e.Counter, e.Current, e.Decrease)
}

func (e *LimitUnderflowError) Unwrap() error { return ErrLimitUnderflow }
