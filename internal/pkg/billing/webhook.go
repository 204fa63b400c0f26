package billing

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/velora-app/velora/app/models"
)

// ProcessWebhook drives one inbound webhook delivery end to end: verify the
// signature, deduplicate on the external event id, route by kind, sweep
// pending payouts, mark the event processed.
//
// The event row is inserted before any routed mutation runs. A crash in the
// middle therefore prevents a full re-execution on the processor's retry; the
// routed mutations themselves are idempotent (status-checked transitions,
// atomic increments) so the window between insert and final side effects is
// safe to replay only up to effects already committed.
func (s *Service) ProcessWebhook(ctx context.Context, payload []byte, signatureHeader string) (*WebhookResult, error) {
	if !VerifyStripeWebhookSignature(payload, signatureHeader, s.webhookSecret, s.sigTolerance) {
		return nil, ErrInvalidSignature
	}

	event, err := ParseEvent(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	created, stored, err := s.repo.CreateEventIfNotExists(&models.StripeEvent{
		StripeEventID: event.ID,
		EventType:     event.Type,
		PayloadJSON:   string(payload),
	})
	if err != nil {
		return nil, err
	}
	if !created {
		// At-least-once delivery; acknowledge without reprocessing.
		return &WebhookResult{EventID: event.ID, EventType: event.Type, Duplicate: true}, nil
	}

	if err := s.routeEvent(ctx, event); err != nil {
		if markErr := s.repo.MarkEventProcessed(stored.ID, err.Error()); markErr != nil {
			log.Printf("billing: recording processing error for event %s failed: %v", event.ID, markErr)
		}
		return nil, err
	}

	// Best effort: individual transfer failures are recorded on the
	// transfer and never fail the delivery.
	s.SweepPendingTransfers(ctx)

	if err := s.repo.MarkEventProcessed(stored.ID, ""); err != nil {
		return nil, err
	}

	return &WebhookResult{
		EventID:   event.ID,
		EventType: event.Type,
		Ignored:   event.Kind == EventIgnored,
	}, nil
}

func (s *Service) routeEvent(ctx context.Context, event *Event) error {
	switch event.Kind {
	case EventSubscriptionCreated:
		return s.applySubscriptionCreated(ctx, event.Subscription)

	case EventSubscriptionUpdated:
		sub := event.Subscription
		statusChanged := event.PreviousStatus != "" && event.PreviousStatus != sub.Status
		opts := SubscriptionUpdateOptions{
			StatusChanged:  statusChanged,
			PreviousStatus: event.PreviousStatus,
		}
		if statusChanged && sub.Status == models.SubscriptionStatusPastDue {
			opts.LastPaymentError = SetString("Payment past due")
		}
		return s.ApplySubscriptionEvent(ctx, sub.Customer, sub, opts)

	case EventSubscriptionDeleted:
		sub := event.Subscription
		return s.ApplySubscriptionEvent(ctx, sub.Customer, sub, SubscriptionUpdateOptions{
			ForceStatus:    models.SubscriptionStatusCanceled,
			StatusChanged:  true,
			PreviousStatus: sub.Status,
		})

	case EventTrialWillEnd:
		sub := event.Subscription
		return s.ApplySubscriptionEvent(ctx, sub.Customer, sub, SubscriptionUpdateOptions{
			ForceStatus: models.SubscriptionStatusTrialing,
		})

	case EventPaymentSucceeded:
		return s.applyPaymentOutcome(ctx, event.PaymentIntent.Customer,
			SetString(models.InvoiceStatusPaid), ClearString())

	case EventPaymentFailed:
		return s.applyPaymentOutcome(ctx, event.PaymentIntent.Customer,
			SetString(models.InvoiceStatusFailed), SetString(event.PaymentIntent.ErrorMessage()))

	case EventInvoicePaid:
		return s.handleInvoiceEvent(ctx, event.Invoice, models.InvoiceStatusPaid, ClearString())

	case EventInvoicePaymentFailed:
		return s.handleInvoiceEvent(ctx, event.Invoice, models.InvoiceStatusFailed, SetString(event.Invoice.ErrorMessage()))

	case EventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, event.CheckoutSession)

	case EventChargeRefunded:
		return s.HandleRefund(ctx, event.Charge)

	case EventTransferFailed:
		return s.repo.MarkTransferFailedByStripeTransferID(event.Transfer.ID, "Transfer failed at Stripe", time.Now())

	default:
		log.Printf("billing: unhandled event type %s, acknowledging", event.Type)
		return nil
	}
}
