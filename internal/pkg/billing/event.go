package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EventKind enumerates the processor event types this system reacts to. The
// set is closed: anything else parses into EventIgnored and is acknowledged
// without side effects so the processor does not retry it.
type EventKind string

const (
	EventSubscriptionCreated  EventKind = "customer.subscription.created"
	EventSubscriptionUpdated  EventKind = "customer.subscription.updated"
	EventSubscriptionDeleted  EventKind = "customer.subscription.deleted"
	EventTrialWillEnd         EventKind = "customer.subscription.trial_will_end"
	EventPaymentSucceeded     EventKind = "payment_intent.succeeded"
	EventPaymentFailed        EventKind = "payment_intent.payment_failed"
	EventInvoicePaid          EventKind = "invoice.payment_succeeded"
	EventInvoicePaymentFailed EventKind = "invoice.payment_failed"
	EventCheckoutCompleted    EventKind = "checkout.session.completed"
	EventChargeRefunded       EventKind = "charge.refunded"
	EventTransferFailed       EventKind = "transfer.failed"
	EventIgnored              EventKind = "ignored"
)

// Subscription is the processor's subscription snapshot, decoded from webhook
// payloads and from subscription retrievals alike.
type Subscription struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	Items             struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// PriceID returns the price reference of the first subscription item.
func (s *Subscription) PriceID() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return s.Items.Data[0].Price.ID
}

type paymentErrorDetail struct {
	Message string `json:"message"`
}

// PaymentIntent is the intent-level payment outcome snapshot.
type PaymentIntent struct {
	ID               string              `json:"id"`
	Customer         string              `json:"customer"`
	LastPaymentError *paymentErrorDetail `json:"last_payment_error"`
}

// ErrorMessage returns the failure detail or a generic fallback.
func (p *PaymentIntent) ErrorMessage() string {
	if p.LastPaymentError != nil && strings.TrimSpace(p.LastPaymentError.Message) != "" {
		return p.LastPaymentError.Message
	}
	return "Payment failed"
}

// Invoice is the invoice snapshot carried by invoice payment events.
type Invoice struct {
	ID               string              `json:"id"`
	Customer         string              `json:"customer"`
	Subscription     string              `json:"subscription"`
	LastPaymentError *paymentErrorDetail `json:"last_payment_error"`
}

// ErrorMessage returns the failure detail or a generic fallback.
func (i *Invoice) ErrorMessage() string {
	if i.LastPaymentError != nil && strings.TrimSpace(i.LastPaymentError.Message) != "" {
		return i.LastPaymentError.Message
	}
	return "Payment failed"
}

// CheckoutSession is the completed checkout snapshot. AmountTotal is in minor
// currency units.
type CheckoutSession struct {
	ID                string `json:"id"`
	Mode              string `json:"mode"`
	Customer          string `json:"customer"`
	CustomerEmail     string `json:"customer_email"`
	ClientReferenceID string `json:"client_reference_id"`
	AmountTotal       int64  `json:"amount_total"`
	URL               string `json:"url"`
}

// Charge is the charge snapshot carried by refund events.
type Charge struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
	Amount        int64  `json:"amount"`
	Refunded      bool   `json:"refunded"`
}

// Transfer is an outbound transfer as returned by the processor.
type Transfer struct {
	ID          string `json:"id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Destination string `json:"destination"`
}

// Event is a parsed webhook notification. Exactly one of the object fields is
// populated, matching Kind.
type Event struct {
	ID   string
	Type string
	Kind EventKind

	Subscription    *Subscription
	PreviousStatus  string
	PaymentIntent   *PaymentIntent
	Invoice         *Invoice
	CheckoutSession *CheckoutSession
	Charge          *Charge
	Transfer        *Transfer
}

type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object             json.RawMessage `json:"object"`
		PreviousAttributes struct {
			Status string `json:"status"`
		} `json:"previous_attributes"`
	} `json:"data"`
}

// ParseEvent decodes a verified webhook payload into a typed event. Unknown
// event types yield Kind == EventIgnored, never an error.
func ParseEvent(payload []byte) (*Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	if strings.TrimSpace(env.ID) == "" {
		return nil, errors.New("event payload missing id")
	}

	ev := &Event{ID: env.ID, Type: env.Type, Kind: EventIgnored}

	decode := func(out interface{}) error {
		if len(env.Data.Object) == 0 {
			return fmt.Errorf("event %s missing data object", env.Type)
		}
		return json.Unmarshal(env.Data.Object, out)
	}

	switch EventKind(env.Type) {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted, EventTrialWillEnd:
		ev.Subscription = &Subscription{}
		if err := decode(ev.Subscription); err != nil {
			return nil, err
		}
		ev.PreviousStatus = env.Data.PreviousAttributes.Status
	case EventPaymentSucceeded, EventPaymentFailed:
		ev.PaymentIntent = &PaymentIntent{}
		if err := decode(ev.PaymentIntent); err != nil {
			return nil, err
		}
	case EventInvoicePaid, EventInvoicePaymentFailed:
		ev.Invoice = &Invoice{}
		if err := decode(ev.Invoice); err != nil {
			return nil, err
		}
	case EventCheckoutCompleted:
		ev.CheckoutSession = &CheckoutSession{}
		if err := decode(ev.CheckoutSession); err != nil {
			return nil, err
		}
	case EventChargeRefunded:
		ev.Charge = &Charge{}
		if err := decode(ev.Charge); err != nil {
			return nil, err
		}
	case EventTransferFailed:
		ev.Transfer = &Transfer{}
		if err := decode(ev.Transfer); err != nil {
			return nil, err
		}
	default:
		return ev, nil
	}

	ev.Kind = EventKind(env.Type)
	return ev, nil
}
