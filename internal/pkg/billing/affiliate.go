package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/velora-app/velora/app/models"
	"gorm.io/gorm"
)

var (
	// ErrUnknownReferralCode is returned when a tracked referral names a code
	// nobody owns.
	ErrUnknownReferralCode = errors.New("unknown referral code")

	// ErrSelfReferral is returned when a user tries to refer themselves.
	ErrSelfReferral = errors.New("self referral is not allowed")
)

// JoinAffiliateProgram enrolls a user as an affiliate. The referral code is
// generated once and kept stable; the payout destination may be set or
// updated at any time.
func (s *Service) JoinAffiliateProgram(ctx context.Context, userID uint, connectAccountID string) (*models.User, error) {
	_ = ctx

	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return nil, err
	}

	if !user.IsAffiliate() {
		user.GenerateReferralCode()
	}
	if v := strings.TrimSpace(connectAccountID); v != "" {
		user.StripeConnectAccountID = v
	}

	if err := s.repo.SaveUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

// TrackReferral records a pending referral for a freshly signed-up user.
// Tracking is idempotent: a user with any existing referral keeps it and no
// second row is created.
func (s *Service) TrackReferral(ctx context.Context, referralCode string, referredUserID uint) (*models.AffiliateReferral, error) {
	_ = ctx

	code := strings.TrimSpace(referralCode)
	if code == "" {
		return nil, ErrUnknownReferralCode
	}

	referrer, err := s.repo.GetUserByReferralCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownReferralCode
		}
		return nil, err
	}
	if referrer.ID == referredUserID {
		return nil, ErrSelfReferral
	}

	exists, err := s.repo.HasReferralForUser(referredUserID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	ref := &models.AffiliateReferral{
		ReferrerID:     referrer.ID,
		ReferredUserID: referredUserID,
		Status:         models.ReferralStatusPending,
	}
	if err := s.repo.CreateReferral(ref); err != nil {
		return nil, err
	}
	return ref, nil
}

// AffiliateStats summarizes an affiliate's program state.
type AffiliateStats struct {
	ReferralCode   string                     `json:"referral_code"`
	ReferralClicks uint64                     `json:"referral_clicks"`
	TotalEarnings  decimal.Decimal            `json:"total_earnings"`
	UnpaidEarnings decimal.Decimal            `json:"unpaid_earnings"`
	Referrals      []models.AffiliateReferral `json:"referrals"`
}

// AffiliateStats returns earnings totals and the referral history for a user.
func (s *Service) AffiliateStats(ctx context.Context, userID uint) (*AffiliateStats, error) {
	_ = ctx

	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return nil, err
	}

	referrals, err := s.repo.ListReferralsByReferrer(userID)
	if err != nil {
		return nil, err
	}

	return &AffiliateStats{
		ReferralCode:   user.ReferralCode,
		ReferralClicks: user.ReferralClicks,
		TotalEarnings:  user.TotalAffiliateEarnings,
		UnpaidEarnings: user.UnpaidAffiliateEarnings,
		Referrals:      referrals,
	}, nil
}
