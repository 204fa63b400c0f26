package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/velora-app/velora/internal/pkg/env"
)

const defaultStripeAPIBaseURL = "https://api.stripe.com/v1"

// ProcessorClient is the outbound payment-processor capability used by the
// billing service. *StripeClient is the production implementation; tests
// substitute a stub.
type ProcessorClient interface {
	RetrieveCustomer(ctx context.Context, customerID string) (*Customer, error)
	RetrieveSubscription(ctx context.Context, subscriptionID, idempotencyKey string) (*Subscription, error)
	CreateTransfer(ctx context.Context, amountMinor int64, currency, destination string) (*Transfer, error)
	ReverseTransfer(ctx context.Context, transferID string) error
}

// Customer is the processor's customer record, reduced to what this system
// needs to resolve local accounts.
type Customer struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Deleted bool   `json:"deleted"`
}

// PortalSession is a billing-portal session created for account management.
type PortalSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CheckoutSessionParams describes a subscription-mode checkout session.
type CheckoutSessionParams struct {
	PriceID           string
	SuccessURL        string
	CancelURL         string
	CustomerEmail     string
	ClientReferenceID string
	UserID            string
}

// APIError is a non-2xx response from the processor's API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stripe api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
}

// StripeClient talks to the Stripe REST API. Base URL and HTTP client are
// overridable for tests.
type StripeClient struct {
	SecretKey  string
	APIBaseURL string

	HTTPClient *http.Client
}

func NewStripeClientFromEnv() *StripeClient {
	return &StripeClient{
		SecretKey:  strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		APIBaseURL: strings.TrimSpace(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *StripeClient) RetrieveCustomer(ctx context.Context, customerID string) (*Customer, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, fmt.Errorf("customer id is required")
	}
	var out Customer
	if err := c.do(ctx, http.MethodGet, "/customers/"+url.PathEscape(customerID), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetrieveSubscription fetches a subscription snapshot. The idempotency key is
// derived from the triggering invoice so retried invoice events replay the
// same request.
func (c *StripeClient) RetrieveSubscription(ctx context.Context, subscriptionID, idempotencyKey string) (*Subscription, error) {
	if strings.TrimSpace(subscriptionID) == "" {
		return nil, fmt.Errorf("subscription id is required")
	}
	var out Subscription
	if err := c.do(ctx, http.MethodGet, "/subscriptions/"+url.PathEscape(subscriptionID), nil, idempotencyKey, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *StripeClient) CreateTransfer(ctx context.Context, amountMinor int64, currency, destination string) (*Transfer, error) {
	if amountMinor <= 0 {
		return nil, fmt.Errorf("transfer amount must be positive")
	}
	if strings.TrimSpace(destination) == "" {
		return nil, fmt.Errorf("transfer destination is required")
	}
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountMinor, 10))
	form.Set("currency", currency)
	form.Set("destination", destination)

	var out Transfer
	if err := c.do(ctx, http.MethodPost, "/transfers", form, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *StripeClient) ReverseTransfer(ctx context.Context, transferID string) error {
	if strings.TrimSpace(transferID) == "" {
		return fmt.Errorf("transfer id is required")
	}
	var out struct {
		ID string `json:"id"`
	}
	return c.do(ctx, http.MethodPost, "/transfers/"+url.PathEscape(transferID)+"/reversals", url.Values{}, "", &out)
}

func (c *StripeClient) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	if strings.TrimSpace(params.PriceID) == "" {
		return nil, fmt.Errorf("price id is required")
	}
	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("payment_method_types[0]", "card")
	form.Set("line_items[0][price]", params.PriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	form.Set("customer_email", params.CustomerEmail)
	form.Set("client_reference_id", params.ClientReferenceID)
	form.Set("allow_promotion_codes", "true")
	form.Set("billing_address_collection", "required")
	form.Set("automatic_tax[enabled]", "true")
	if params.UserID != "" {
		form.Set("metadata[user_id]", params.UserID)
	}
	if params.CustomerEmail != "" {
		form.Set("metadata[user_email]", params.CustomerEmail)
	}

	var out CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/checkout/sessions", form, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *StripeClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*PortalSession, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, fmt.Errorf("customer id is required")
	}
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("return_url", returnURL)

	var out PortalSession
	if err := c.do(ctx, http.MethodPost, "/billing_portal/sessions", form, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *StripeClient) do(ctx context.Context, method, path string, form url.Values, idempotencyKey string, out interface{}) error {
	base := strings.TrimRight(c.APIBaseURL, "/")
	if base == "" {
		base = defaultStripeAPIBaseURL
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envl struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(raw, &envl); err == nil {
			apiErr.Code = envl.Error.Code
			apiErr.Message = envl.Error.Message
		}
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
