package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the repositories that must change together.
// Repositories obtained from the tx passed to Transaction share its database transaction.
type Store interface {
	QRCodes() QRCodeRepository
	Sequences() SequenceRepository
	Ledgers() UsageLedgerRepository
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

type pgStore struct {
	db *gorm.DB
}

func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

func (s *pgStore) QRCodes() QRCodeRepository      { return &pgQRCodeRepository{db: s.db} }
func (s *pgStore) Sequences() SequenceRepository  { return &pgSequenceRepository{db: s.db} }
func (s *pgStore) Ledgers() UsageLedgerRepository { return &pgUsageLedgerRepository{db: s.db} }

func (s *pgStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&pgStore{db: tx})
	})
}
