package billing

import "errors"

var (
	// ErrInvalidSignature is returned when the webhook signature header does
	// not authenticate the payload. Nothing is persisted in that case.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrInvalidPayload is returned when a verified payload cannot be parsed
	// into an event envelope.
	ErrInvalidPayload = errors.New("invalid webhook payload")

	// ErrAccountNotFound is returned when a checkout session references a
	// user that does not exist. For all other event kinds a missing account
	// is treated as a no-op, but a broken checkout binding is a real fault.
	ErrAccountNotFound = errors.New("account not found")
)
