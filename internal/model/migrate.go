package model

import "gorm.io/gorm"

// AutoMigrate runs GORM auto-migration for all models and creates custom indexes.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&QRCode{},
		&SequenceCounter{},
		&UsageLedger{},
	); err != nil {
		return err
	}

	// Ledger deletes count only codes created in the current window.
	return db.Exec(
		"CREATE INDEX IF NOT EXISTS idx_qr_codes_owner_created " +
			"ON qr_codes (owner_id, created_at)",
	).Error
}
