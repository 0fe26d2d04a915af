package model

import (
	"time"

	"github.com/google/uuid"
)

const periodLayout = "2006-01"

// UsageLedger holds the running totals of codes an account has created.
// A zero limit means unlimited.
type UsageLedger struct {
	OwnerID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"owner_id"`
	LifetimeCreated int64     `gorm:"not null;default:0" json:"lifetime_created"`
	MonthlyCreated  int64     `gorm:"not null;default:0" json:"monthly_created"`
	Period          string    `gorm:"type:varchar(7);not null" json:"period"`
	LifetimeLimit   int64     `gorm:"not null;default:0" json:"lifetime_limit"`
	MonthlyLimit    int64     `gorm:"not null;default:0" json:"monthly_limit"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (UsageLedger) TableName() string { return "usage_ledgers" }

// PeriodOf returns the monthly accounting window that t falls into.
func PeriodOf(t time.Time) string {
	return t.UTC().Format(periodLayout)
}

// Roll resets the monthly counter when the ledger belongs to an older window.
func (l *UsageLedger) Roll(now time.Time) {
	current := PeriodOf(now)
	if l.Period != current {
		l.Period = current
		l.MonthlyCreated = 0
	}
}

// Allows reports whether n more codes fit under both limits.
func (l *UsageLedger) Allows(n int64) bool {
	if l.LifetimeLimit > 0 && l.LifetimeCreated+n > l.LifetimeLimit {
		return false
	}
	if l.MonthlyLimit > 0 && l.MonthlyCreated+n > l.MonthlyLimit {
		return false
	}
	return true
}
