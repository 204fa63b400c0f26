package billing

// StringUpdate is a three-way field update descriptor: the zero value leaves
// the field untouched, ClearString clears it, SetString writes a value. The
// distinction matters for invoice status and payment error fields where
// "absent" and "explicitly cleared" mean different things.
type StringUpdate struct {
	set   bool
	clear bool
	value string
}

// SetString returns an update that writes v.
func SetString(v string) StringUpdate {
	return StringUpdate{set: true, value: v}
}

// ClearString returns an update that clears the field.
func ClearString() StringUpdate {
	return StringUpdate{clear: true}
}

// Apply adds the column to the update map when the descriptor is not the
// zero value.
func (u StringUpdate) Apply(updates map[string]interface{}, column string) {
	switch {
	case u.set:
		updates[column] = u.value
	case u.clear:
		updates[column] = ""
	}
}

// IsZero reports whether the descriptor leaves the field unchanged.
func (u StringUpdate) IsZero() bool {
	return !u.set && !u.clear
}

// Value returns the written value and whether the descriptor writes one.
func (u StringUpdate) Value() (string, bool) {
	return u.value, u.set
}

// SubscriptionUpdateOptions tunes how a subscription snapshot is projected
// onto the local account.
type SubscriptionUpdateOptions struct {
	// StatusChanged and PreviousStatus describe a diffed status transition,
	// used for logging only.
	StatusChanged  bool
	PreviousStatus string

	// ForceStatus overrides the snapshot's own status. Used for synthetic
	// terminal states such as a deleted subscription.
	ForceStatus string

	LastInvoiceStatus StringUpdate
	LastPaymentError  StringUpdate
}

// WebhookResult summarizes a processed webhook delivery.
type WebhookResult struct {
	EventID   string
	EventType string
	Duplicate bool
	Ignored   bool
}
