package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/velora-app/velora/app/models"
)

func TestJoinAffiliateProgram(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo, newStubProcessor())

	repo.addUser(&models.User{ID: 1, Email: "user@example.com"})

	user, err := svc.JoinAffiliateProgram(context.Background(), 1, "acct_1")
	if err != nil {
		t.Fatalf("JoinAffiliateProgram returned error: %v", err)
	}
	if user.ReferralCode == "" {
		t.Error("Expected referral code assigned")
	}
	if user.StripeConnectAccountID != "acct_1" {
		t.Errorf("Expected payout destination stored, got %q", user.StripeConnectAccountID)
	}

	// Joining again keeps the code stable.
	again, err := svc.JoinAffiliateProgram(context.Background(), 1, "")
	if err != nil {
		t.Fatalf("second JoinAffiliateProgram returned error: %v", err)
	}
	if again.ReferralCode != user.ReferralCode {
		t.Errorf("Expected stable referral code, got %q then %q", user.ReferralCode, again.ReferralCode)
	}
	if again.StripeConnectAccountID != "acct_1" {
		t.Error("Expected empty destination to leave the stored one untouched")
	}
}

func TestTrackReferral(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo, newStubProcessor())

	repo.addUser(&models.User{ID: 1, Email: "affiliate@example.com", ReferralCode: "abc123"})
	repo.addUser(&models.User{ID: 2, Email: "newuser@example.com"})

	ref, err := svc.TrackReferral(context.Background(), "abc123", 2)
	if err != nil {
		t.Fatalf("TrackReferral returned error: %v", err)
	}
	if ref == nil || ref.Status != models.ReferralStatusPending {
		t.Fatalf("Expected pending referral, got %+v", ref)
	}
	if ref.ReferrerID != 1 || ref.ReferredUserID != 2 {
		t.Errorf("Unexpected referral linkage: %+v", ref)
	}

	// A second track for the same user is an idempotent no-op.
	dup, err := svc.TrackReferral(context.Background(), "abc123", 2)
	if err != nil {
		t.Fatalf("duplicate TrackReferral returned error: %v", err)
	}
	if dup != nil {
		t.Error("Expected duplicate tracking to return no new referral")
	}
}

func TestTrackReferralGuards(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo, newStubProcessor())

	repo.addUser(&models.User{ID: 1, Email: "affiliate@example.com", ReferralCode: "abc123"})

	if _, err := svc.TrackReferral(context.Background(), "nope", 2); !errors.Is(err, ErrUnknownReferralCode) {
		t.Errorf("Expected ErrUnknownReferralCode, got %v", err)
	}
	if _, err := svc.TrackReferral(context.Background(), "", 2); !errors.Is(err, ErrUnknownReferralCode) {
		t.Errorf("Expected ErrUnknownReferralCode for empty code, got %v", err)
	}
	if _, err := svc.TrackReferral(context.Background(), "abc123", 1); !errors.Is(err, ErrSelfReferral) {
		t.Errorf("Expected ErrSelfReferral, got %v", err)
	}
}

func TestAffiliateStats(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo, newStubProcessor())

	affiliate := repo.addUser(&models.User{ID: 1, Email: "affiliate@example.com", ReferralCode: "abc123", ReferralClicks: 12})
	repo.addUser(&models.User{ID: 2, Email: "referred@example.com"})
	_ = repo.CreateReferral(&models.AffiliateReferral{ReferrerID: affiliate.ID, ReferredUserID: 2, Status: models.ReferralStatusPending})

	stats, err := svc.AffiliateStats(context.Background(), 1)
	if err != nil {
		t.Fatalf("AffiliateStats returned error: %v", err)
	}
	if stats.ReferralCode != "abc123" {
		t.Errorf("Expected referral code in stats, got %q", stats.ReferralCode)
	}
	if stats.ReferralClicks != 12 {
		t.Errorf("Expected 12 clicks, got %d", stats.ReferralClicks)
	}
	if len(stats.Referrals) != 1 {
		t.Errorf("Expected one referral in history, got %d", len(stats.Referrals))
	}
}
