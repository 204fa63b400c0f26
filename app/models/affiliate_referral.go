package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ReferralStatusPending   = "pending"
	ReferralStatusConverted = "converted"
)

// AffiliateReferral records one referred sign-up. A referral starts out
// pending and converts exactly once, when the referred user's first
// qualifying payment completes.
type AffiliateReferral struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	ReferrerID       uint             `gorm:"not null;index" json:"referrer_id"`
	ReferredUserID   uint             `gorm:"not null;index:idx_affiliate_referrals_referred_status,priority:1" json:"referred_user_id"`
	Status           string           `gorm:"type:varchar(16);not null;default:'pending';index:idx_affiliate_referrals_referred_status,priority:2" json:"status"`
	CommissionAmount *decimal.Decimal `gorm:"type:decimal(12,2);default:null" json:"commission_amount,omitempty"`
	ConvertedAt      *time.Time       `gorm:"type:timestamp;default:null" json:"converted_at,omitempty"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsPending reports whether the referral still awaits conversion.
func (r *AffiliateReferral) IsPending() bool {
	return r.Status == ReferralStatusPending
}
