package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	SubscriptionStatusActive     = "active"
	SubscriptionStatusTrialing   = "trialing"
	SubscriptionStatusPastDue    = "past_due"
	SubscriptionStatusCanceled   = "canceled"
	SubscriptionStatusIncomplete = "incomplete"
	SubscriptionStatusUnpaid     = "unpaid"
	SubscriptionStatusNone       = ""
)

const (
	InvoiceStatusPaid   = "paid"
	InvoiceStatusFailed = "failed"
	InvoiceStatusNone   = ""
)

type User struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	UUID        string `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	Email       string `gorm:"uniqueIndex;type:varchar(200) CHARACTER SET utf8 COLLATE utf8_bin" json:"email" validate:"required,email,min=5,max=200"`
	DisplayName string `gorm:"type:varchar(150)" json:"display_name" validate:"max=150"`

	// Billing state mirrored from the payment processor.
	StripeCustomerID             string     `gorm:"type:varchar(191);default:'';index" json:"-"`
	StripeSubscriptionID         string     `gorm:"type:varchar(191);default:''" json:"-"`
	SubscriptionPriceID          string     `gorm:"type:varchar(191);default:''" json:"subscription_price_id"`
	SubscriptionStatus           string     `gorm:"type:varchar(32);default:'';index" json:"subscription_status"`
	SubscriptionCurrentPeriodEnd *time.Time `gorm:"type:timestamp;default:null" json:"subscription_current_period_end,omitempty"`
	CancelAtPeriodEnd            bool       `gorm:"default:false" json:"cancel_at_period_end"`
	ProAccess                    bool       `gorm:"default:false;index" json:"pro_access"`
	LastInvoiceStatus            string     `gorm:"type:varchar(16);default:''" json:"last_invoice_status"`
	LastPaymentError             string     `gorm:"type:text" json:"last_payment_error,omitempty"`

	// Affiliate program state.
	ReferralCode            string          `gorm:"type:varchar(64);default:'';index" json:"referral_code,omitempty"`
	StripeConnectAccountID  string          `gorm:"type:varchar(191);default:''" json:"-"`
	ReferralClicks          uint64          `gorm:"default:0" json:"referral_clicks"`
	TotalAffiliateEarnings  decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"total_affiliate_earnings"`
	UnpaidAffiliateEarnings decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"unpaid_affiliate_earnings"`

	LastLoginAt *time.Time     `gorm:"type:timestamp;default:null" json:"last_login_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

func CreateUser(email string, displayName string) (*User, error) {
	u := &User{
		UUID:        uuid.NewString(),
		Email:       strings.ToLower(strings.TrimSpace(email)),
		DisplayName: strings.TrimSpace(displayName),
	}

	if err := u.Validate(); err != nil {
		return nil, err
	}

	return u, nil
}

// IsAffiliate reports whether the user joined the affiliate program.
func (u *User) IsAffiliate() bool {
	return u.ReferralCode != ""
}

// CanReceivePayouts reports whether a payout destination is configured.
func (u *User) CanReceivePayouts() bool {
	return u.StripeConnectAccountID != ""
}

// GenerateReferralCode assigns a fresh referral code. The code is the short
// prefix of a UUID which keeps it human-shareable.
func (u *User) GenerateReferralCode() string {
	u.ReferralCode = strings.Split(uuid.NewString(), "-")[0]
	return u.ReferralCode
}

// GrantsProAccess reports whether a subscription status entitles pro access.
func GrantsProAccess(status string) bool {
	switch status {
	case SubscriptionStatusActive, SubscriptionStatusTrialing:
		return true
	default:
		return false
	}
}
