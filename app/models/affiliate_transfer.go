package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransferStatusPending   = "pending"
	TransferStatusCompleted = "completed"
	TransferStatusFailed    = "failed"
)

// AffiliateTransfer is one payout attempt to an affiliate. Transfers are
// created pending by the commission engine and moved to completed or failed
// exclusively by the payout sweep. A refund may reverse a completed transfer
// but never deletes the record.
type AffiliateTransfer struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	AffiliateID      uint            `gorm:"not null;index" json:"affiliate_id"`
	Amount           decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Status           string          `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	SessionID        string          `gorm:"type:varchar(191);not null;index" json:"session_id"`
	StripeTransferID string          `gorm:"type:varchar(191);default:'';index" json:"stripe_transfer_id,omitempty"`
	Error            string          `gorm:"type:text" json:"error,omitempty"`
	ProcessedAt      *time.Time      `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
