package controllers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/velora-app/velora/app/models"
	"github.com/velora-app/velora/internal/pkg/billing"
	"github.com/velora-app/velora/internal/pkg/constants"
	"github.com/velora-app/velora/internal/pkg/database"
	"github.com/velora-app/velora/internal/pkg/env"
	"github.com/velora-app/velora/internal/pkg/usercontext"
	"gorm.io/gorm"
)

// HandleStripeWebhook receives signed processor events. The body must stay
// raw until the signature verifies; nothing is trusted or persisted before
// that.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))

	svc := billing.NewServiceFromDB(database.GetDB(), billing.NewStripeClientFromEnv())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := svc.ProcessWebhook(ctx, rawBody, signature); err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) || errors.Is(err, billing.ErrInvalidPayload) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_handler_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}

type createCheckoutRequest struct {
	PriceID string `json:"price_id"`
}

// HandleCreateCheckout creates a subscription-mode checkout session for the
// authenticated user. The user's ID travels as the session's client reference
// so the completed-checkout webhook can bind the billing customer back.
func HandleCreateCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var req createCheckoutRequest
	// Body is optional; an empty body falls back to the configured price.
	_ = c.BodyParser(&req)
	priceID := strings.TrimSpace(req.PriceID)
	if priceID == "" {
		priceID = env.GetEnv("STRIPE_MONTHLY_PRICE_ID", "")
	}
	if priceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no_price_configured"})
	}

	appURL := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	client := billing.NewStripeClientFromEnv()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	session, err := client.CreateCheckoutSession(ctx, billing.CheckoutSessionParams{
		PriceID:           priceID,
		SuccessURL:        appURL + constants.PaymentSuccessPath,
		CancelURL:         appURL + constants.PaymentCancelPath,
		CustomerEmail:     userCtx.Email,
		ClientReferenceID: strconv.FormatUint(uint64(userCtx.UserID), 10),
		UserID:            strconv.FormatUint(uint64(userCtx.UserID), 10),
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "checkout_session_failed"})
	}
	if session.URL == "" {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "checkout_session_failed"})
	}

	return c.JSON(fiber.Map{"url": session.URL})
}

// HandleCreatePortal creates a billing-portal session for the authenticated
// user. The stored customer is verified upstream first; a deleted or unknown
// customer is a client error, not a server fault.
func HandleCreatePortal(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var user models.User
	if err := database.GetDB().First(&user, userCtx.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "user_lookup_failed"})
	}
	if user.StripeCustomerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no_billing_customer"})
	}

	client := billing.NewStripeClientFromEnv()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	customer, err := client.RetrieveCustomer(ctx, user.StripeCustomerID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_billing_customer"})
	}
	if customer.Deleted {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "billing_customer_deleted"})
	}

	appURL := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	session, err := client.CreatePortalSession(ctx, user.StripeCustomerID, appURL+constants.PortalReturnPath)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "portal_session_failed"})
	}

	return c.JSON(fiber.Map{"url": session.URL})
}
