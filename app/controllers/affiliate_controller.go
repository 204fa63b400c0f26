package controllers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/velora-app/velora/internal/pkg/billing"
	"github.com/velora-app/velora/internal/pkg/cache"
	"github.com/velora-app/velora/internal/pkg/database"
	"github.com/velora-app/velora/internal/pkg/metrics/counter"
	"github.com/velora-app/velora/internal/pkg/usercontext"
	"gorm.io/gorm"
)

const referralCodeCacheTTL = 10 * time.Minute

type joinAffiliateRequest struct {
	ConnectAccountID string `json:"connect_account_id"`
}

// HandleJoinAffiliateProgram enrolls the authenticated user as an affiliate
// and optionally stores their payout destination.
func HandleJoinAffiliateProgram(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var req joinAffiliateRequest
	_ = c.BodyParser(&req)

	svc := billing.NewServiceFromDB(database.GetDB(), billing.NewStripeClientFromEnv())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := svc.JoinAffiliateProgram(ctx, userCtx.UserID, req.ConnectAccountID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "affiliate_join_failed"})
	}

	return c.JSON(fiber.Map{
		"referral_code":      user.ReferralCode,
		"payouts_configured": user.CanReceivePayouts(),
		"total_earnings":     user.TotalAffiliateEarnings,
		"unpaid_earnings":    user.UnpaidAffiliateEarnings,
	})
}

// HandleAffiliateStats returns earnings totals and referral history.
func HandleAffiliateStats(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	svc := billing.NewServiceFromDB(database.GetDB(), billing.NewStripeClientFromEnv())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := svc.AffiliateStats(ctx, userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stats_failed"})
	}

	return c.JSON(stats)
}

type trackReferralRequest struct {
	ReferralCode string `json:"referral_code"`
}

// HandleTrackReferral records a pending referral for the authenticated,
// freshly signed-up user. The code-to-referrer resolution is cached since
// popular codes are looked up repeatedly from landing pages.
func HandleTrackReferral(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var req trackReferralRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request_body"})
	}
	code := strings.TrimSpace(req.ReferralCode)
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "referral_code_required"})
	}

	svc := billing.NewServiceFromDB(database.GetDB(), billing.NewStripeClientFromEnv())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ref, err := svc.TrackReferral(ctx, code, userCtx.UserID)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrUnknownReferralCode):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown_referral_code"})
		case errors.Is(err, billing.ErrSelfReferral):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "self_referral"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "referral_tracking_failed"})
		}
	}
	if ref == nil {
		// Already tracked earlier; idempotent success.
		return c.JSON(fiber.Map{"tracked": true, "duplicate": true})
	}

	return c.JSON(fiber.Map{"tracked": true})
}

// HandleResolveReferralCode checks whether a referral code exists. Public,
// used by the sign-up page; results are cached.
func HandleResolveReferralCode(c *fiber.Ctx) error {
	code := strings.TrimSpace(c.Params("code"))
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "referral_code_required"})
	}

	cacheKey := "referral_code:" + code
	if cached, err := cache.Get(cacheKey); err == nil {
		if cached == "0" {
			return c.JSON(fiber.Map{"valid": false})
		}
		if referrerID, perr := strconv.ParseUint(cached, 10, 64); perr == nil {
			_ = counter.AddReferralClick(uint(referrerID))
		}
		return c.JSON(fiber.Map{"valid": true})
	}

	repo := billing.NewRepository(database.GetDB())
	referrer, err := repo.GetUserByReferralCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			_ = cache.Set(cacheKey, "0", referralCodeCacheTTL)
			return c.JSON(fiber.Map{"valid": false})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "lookup_failed"})
	}

	_ = cache.Set(cacheKey, strconv.FormatUint(uint64(referrer.ID), 10), referralCodeCacheTTL)
	_ = counter.AddReferralClick(referrer.ID)
	return c.JSON(fiber.Map{"valid": true})
}
