package model

import (
	"time"

	"github.com/google/uuid"
)

// SequenceCounter stores the last sequential number handed out for an account.
type SequenceCounter struct {
	OwnerID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"owner_id"`
	LastValue int64     `gorm:"not null;default:0" json:"last_value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SequenceCounter) TableName() string { return "qr_sequence_counters" }
