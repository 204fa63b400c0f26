package entitlements

import (
	"github.com/velora-app/velora/app/models"
)

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// Entitlements is the feature surface a user's subscription unlocks.
type Entitlements struct {
	Plan             Plan `json:"plan"`
	ProAccess        bool `json:"pro_access"`
	AffiliateProgram bool `json:"affiliate_program"`
	AffiliatePayouts bool `json:"affiliate_payouts"`
}

// PlanFor maps a subscription status to a plan. Trialing users get the pro
// plan; everything else falls back to free.
func PlanFor(status string) Plan {
	if models.GrantsProAccess(status) {
		return PlanPro
	}
	return PlanFree
}

// ForUser computes the effective entitlements from the user's mirrored
// billing and affiliate state.
func ForUser(u *models.User) Entitlements {
	return Entitlements{
		Plan:             PlanFor(u.SubscriptionStatus),
		ProAccess:        u.ProAccess,
		AffiliateProgram: u.IsAffiliate(),
		AffiliatePayouts: u.CanReceivePayouts(),
	}
}
