package entitlements

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/velora-app/velora/app/models"
)

func TestPlanFor(t *testing.T) {
	assert.Equal(t, PlanPro, PlanFor(models.SubscriptionStatusActive))
	assert.Equal(t, PlanPro, PlanFor(models.SubscriptionStatusTrialing))
	assert.Equal(t, PlanFree, PlanFor(models.SubscriptionStatusPastDue))
	assert.Equal(t, PlanFree, PlanFor(models.SubscriptionStatusNone))
}

func TestForUser(t *testing.T) {
	u := &models.User{
		SubscriptionStatus:     models.SubscriptionStatusActive,
		ProAccess:              true,
		ReferralCode:           "abc123",
		StripeConnectAccountID: "",
	}

	e := ForUser(u)
	assert.Equal(t, PlanPro, e.Plan)
	assert.True(t, e.ProAccess)
	assert.True(t, e.AffiliateProgram)
	assert.False(t, e.AffiliatePayouts)
}
