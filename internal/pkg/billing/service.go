package billing

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/velora-app/velora/app/models"
	"github.com/velora-app/velora/internal/pkg/env"
	"github.com/velora-app/velora/internal/pkg/mail"
	"gorm.io/gorm"
)

const defaultSignatureTolerance = 5 * time.Minute

// Service reconciles payment-processor events into local subscription and
// affiliate ledger state.
type Service struct {
	repo      Repository
	processor ProcessorClient

	webhookSecret string
	sigTolerance  time.Duration
}

// NewService creates a billing service from injected dependencies.
func NewService(repo Repository, processor ProcessorClient, webhookSecret string) *Service {
	return &Service{
		repo:          repo,
		processor:     processor,
		webhookSecret: webhookSecret,
		sigTolerance:  defaultSignatureTolerance,
	}
}

// NewServiceFromDB creates a billing service from a GORM DB handle and the
// environment's webhook secret.
func NewServiceFromDB(db *gorm.DB, processor ProcessorClient) *Service {
	return NewService(NewRepository(db), processor, env.GetEnv("STRIPE_WEBHOOK_SECRET", ""))
}

// ApplySubscriptionEvent projects a subscription snapshot onto the account
// that owns the given billing customer. A customer without a resolvable email
// is a defensive no-op: the processor emits events for test and incomplete
// customers this system never created.
func (s *Service) ApplySubscriptionEvent(ctx context.Context, customerID string, sub *Subscription, opts SubscriptionUpdateOptions) error {
	customer, err := s.processor.RetrieveCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(customer.Email) == "" {
		log.Printf("billing: customer %s has no email, skipping subscription update", customerID)
		return nil
	}

	effectiveStatus := sub.Status
	if opts.ForceStatus != "" {
		effectiveStatus = opts.ForceStatus
	}

	updates := map[string]interface{}{
		"pro_access":             models.GrantsProAccess(effectiveStatus),
		"subscription_status":    effectiveStatus,
		"stripe_subscription_id": sub.ID,
		"subscription_price_id":  sub.PriceID(),
		"cancel_at_period_end":   sub.CancelAtPeriodEnd,
	}
	if end := periodEndTime(sub.CurrentPeriodEnd); end != nil {
		updates["subscription_current_period_end"] = end
	}
	opts.LastInvoiceStatus.Apply(updates, "last_invoice_status")
	opts.LastPaymentError.Apply(updates, "last_payment_error")

	if err := s.repo.UpdateUserByEmail(customer.Email, updates); err != nil {
		return err
	}

	if opts.StatusChanged {
		log.Printf("billing: subscription status for %s changed %s -> %s", customer.Email, opts.PreviousStatus, effectiveStatus)
	}
	return nil
}

// applySubscriptionCreated handles the initial creation event, which only
// binds subscription id, status, price and the derived pro access flag.
func (s *Service) applySubscriptionCreated(ctx context.Context, sub *Subscription) error {
	customer, err := s.processor.RetrieveCustomer(ctx, sub.Customer)
	if err != nil {
		return err
	}
	if strings.TrimSpace(customer.Email) == "" {
		log.Printf("billing: customer %s has no email, skipping subscription create", sub.Customer)
		return nil
	}

	return s.repo.UpdateUserByEmail(customer.Email, map[string]interface{}{
		"stripe_subscription_id": sub.ID,
		"subscription_status":    sub.Status,
		"subscription_price_id":  sub.PriceID(),
		"pro_access":             models.GrantsProAccess(sub.Status),
	})
}

// applyPaymentOutcome records an intent-level payment result against the
// customer's account. Missing customers and emails are no-ops.
func (s *Service) applyPaymentOutcome(ctx context.Context, customerID string, invoiceStatus StringUpdate, paymentError StringUpdate) error {
	if strings.TrimSpace(customerID) == "" {
		return nil
	}
	customer, err := s.processor.RetrieveCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(customer.Email) == "" {
		return nil
	}

	updates := map[string]interface{}{}
	invoiceStatus.Apply(updates, "last_invoice_status")
	paymentError.Apply(updates, "last_payment_error")
	if len(updates) == 0 {
		return nil
	}
	if err := s.repo.UpdateUserByEmail(customer.Email, updates); err != nil {
		return err
	}

	if v, ok := invoiceStatus.Value(); ok && v == models.InvoiceStatusFailed {
		reason := "payment declined"
		if msg, ok := paymentError.Value(); ok && msg != "" {
			reason = msg
		}
		// Best effort; the billing state is already persisted.
		go func(email, reason string) {
			_ = mail.SendPaymentFailedMail(email, reason)
		}(customer.Email, reason)
	}
	return nil
}

// handleInvoiceEvent re-fetches the subscription behind an invoice and runs
// the full projection with the invoice outcome attached. The subscription
// retrieval carries an idempotency key derived from the invoice.
func (s *Service) handleInvoiceEvent(ctx context.Context, inv *Invoice, invoiceStatus string, paymentError StringUpdate) error {
	if strings.TrimSpace(inv.Subscription) == "" {
		return nil
	}
	sub, err := s.processor.RetrieveSubscription(ctx, inv.Subscription, "sub_retrieve_"+inv.ID)
	if err != nil {
		return err
	}
	return s.ApplySubscriptionEvent(ctx, inv.Customer, sub, SubscriptionUpdateOptions{
		LastInvoiceStatus: SetString(invoiceStatus),
		LastPaymentError:  paymentError,
	})
}

// handleCheckoutCompleted binds the billing customer to the account named by
// the session's client reference and triggers the commission engine. This is
// the one place where a missing account is an error: it indicates a corrupted
// checkout flow, not processor noise.
func (s *Service) handleCheckoutCompleted(ctx context.Context, session *CheckoutSession) error {
	if session.Mode != "subscription" {
		return nil
	}

	userID, err := strconv.ParseUint(strings.TrimSpace(session.ClientReferenceID), 10, 64)
	if err != nil {
		return ErrAccountNotFound
	}

	user, err := s.repo.BindStripeCustomer(uint(userID), session.Customer)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAccountNotFound
		}
		return err
	}

	return s.ProcessCommission(ctx, session, user)
}

func periodEndTime(unix int64) *time.Time {
	if unix <= 0 {
		return nil
	}
	t := time.Unix(unix, 0).UTC()
	return &t
}
