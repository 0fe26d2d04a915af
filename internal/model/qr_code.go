package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type QRCode struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID          uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:idx_qr_codes_owner_seq,priority:1" json:"owner_id"`
	SequentialNumber int64      `gorm:"not null;uniqueIndex:idx_qr_codes_owner_seq,priority:2" json:"sequential_number"`
	EncryptedPayload string     `gorm:"type:text;not null" json:"-"`
	VerificationURL  string     `gorm:"type:varchar(512);not null" json:"verification_url"`
	RenderedImage    string     `gorm:"type:text;not null" json:"rendered_image"`
	IsEnabled        bool       `gorm:"not null;default:true" json:"is_enabled"`
	IsScanned        bool       `gorm:"not null;default:false" json:"is_scanned"`
	ScannedAt        *time.Time `json:"scanned_at,omitempty"`
	Template         string     `gorm:"type:varchar(64);not null" json:"template"`
	HeaderText       string     `gorm:"type:varchar(256)" json:"header_text"`
	InstructionText  string     `gorm:"type:varchar(512)" json:"instruction_text"`
	WebsiteURL       string     `gorm:"type:varchar(512)" json:"website_url"`
	FooterText       string     `gorm:"type:varchar(256)" json:"footer_text"`
	DirectionRTL     bool       `gorm:"not null;default:false" json:"direction_rtl"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (QRCode) TableName() string { return "qr_codes" }

// DisplayNumber is the zero-padded sequential number shown to end users.
func (c QRCode) DisplayNumber() string { return FormatSequence(c.SequentialNumber) }

// FormatSequence pads n to six digits; larger values are printed as is.
func FormatSequence(n int64) string {
	return fmt.Sprintf("%06d", n)
}
