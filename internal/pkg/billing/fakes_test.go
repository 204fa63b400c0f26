package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/velora-app/velora/app/models"
	"gorm.io/gorm"
)

// fakeRepository is an in-memory Repository for exercising the service logic
// without a database.
type fakeRepository struct {
	mu sync.Mutex

	users     map[uint]*models.User
	referrals map[uint]*models.AffiliateReferral
	transfers map[uint]*models.AffiliateTransfer
	events    map[string]*models.StripeEvent

	nextReferralID uint
	nextTransferID uint
	nextEventID    uint
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		users:     map[uint]*models.User{},
		referrals: map[uint]*models.AffiliateReferral{},
		transfers: map[uint]*models.AffiliateTransfer{},
		events:    map[string]*models.StripeEvent{},
	}
}

func (r *fakeRepository) addUser(u *models.User) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.users[cp.ID] = &cp
	return &cp
}

func (r *fakeRepository) GetUserByID(id uint) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeRepository) GetUserByEmail(email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) GetUserByReferralCode(code string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ReferralCode != "" && u.ReferralCode == code {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) BindStripeCustomer(userID uint, customerID string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	u.StripeCustomerID = customerID
	cp := *u
	return &cp, nil
}

func (r *fakeRepository) UpdateUserByEmail(email string, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email != email {
			continue
		}
		applyUserUpdates(u, updates)
		return nil
	}
	return nil
}

func applyUserUpdates(u *models.User, updates map[string]interface{}) {
	for column, value := range updates {
		switch column {
		case "pro_access":
			u.ProAccess = value.(bool)
		case "subscription_status":
			u.SubscriptionStatus = value.(string)
		case "stripe_subscription_id":
			u.StripeSubscriptionID = value.(string)
		case "subscription_price_id":
			u.SubscriptionPriceID = value.(string)
		case "cancel_at_period_end":
			u.CancelAtPeriodEnd = value.(bool)
		case "subscription_current_period_end":
			u.SubscriptionCurrentPeriodEnd = value.(*time.Time)
		case "last_invoice_status":
			u.LastInvoiceStatus = value.(string)
		case "last_payment_error":
			u.LastPaymentError = value.(string)
		}
	}
}

func (r *fakeRepository) SaveUser(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *user
	r.users[cp.ID] = &cp
	return nil
}

func (r *fakeRepository) CreateReferral(ref *models.AffiliateReferral) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextReferralID++
	ref.ID = r.nextReferralID
	if ref.Status == "" {
		ref.Status = models.ReferralStatusPending
	}
	cp := *ref
	r.referrals[cp.ID] = &cp
	return nil
}

func (r *fakeRepository) HasReferralForUser(referredUserID uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ref := range r.referrals {
		if ref.ReferredUserID == referredUserID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepository) FindPendingReferral(referredUserID uint) (*models.AffiliateReferral, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ref := range r.referrals {
		if ref.ReferredUserID == referredUserID && ref.Status == models.ReferralStatusPending {
			cp := *ref
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) ConvertReferral(id uint, amount decimal.Decimal, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.referrals[id]
	if !ok || ref.Status != models.ReferralStatusPending {
		return false, nil
	}
	ref.Status = models.ReferralStatusConverted
	ref.CommissionAmount = &amount
	ref.ConvertedAt = &at
	return true, nil
}

func (r *fakeRepository) ListReferralsByReferrer(referrerID uint) ([]models.AffiliateReferral, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AffiliateReferral
	for _, ref := range r.referrals {
		if ref.ReferrerID == referrerID {
			out = append(out, *ref)
		}
	}
	return out, nil
}

func (r *fakeRepository) AddAffiliateEarnings(userID uint, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.TotalAffiliateEarnings = u.TotalAffiliateEarnings.Add(amount)
	u.UnpaidAffiliateEarnings = u.UnpaidAffiliateEarnings.Add(amount)
	return nil
}

func (r *fakeRepository) DecrementTotalEarnings(userID uint, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.TotalAffiliateEarnings = u.TotalAffiliateEarnings.Sub(amount)
	return nil
}

func (r *fakeRepository) DecrementUnpaidEarnings(userID uint, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.UnpaidAffiliateEarnings = u.UnpaidAffiliateEarnings.Sub(amount)
	return nil
}

func (r *fakeRepository) CreateTransfer(tr *models.AffiliateTransfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextTransferID++
	tr.ID = r.nextTransferID
	if tr.Status == "" {
		tr.Status = models.TransferStatusPending
	}
	cp := *tr
	r.transfers[cp.ID] = &cp
	return nil
}

func (r *fakeRepository) ListPendingTransfers() ([]models.AffiliateTransfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AffiliateTransfer
	for id := uint(1); id <= r.nextTransferID; id++ {
		if tr, ok := r.transfers[id]; ok && tr.Status == models.TransferStatusPending {
			out = append(out, *tr)
		}
	}
	return out, nil
}

func (r *fakeRepository) FindTransferBySessionID(sessionID string) (*models.AffiliateTransfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tr := range r.transfers {
		if tr.SessionID == sessionID {
			cp := *tr
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) MarkTransferCompleted(id uint, stripeTransferID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tr, ok := r.transfers[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	tr.Status = models.TransferStatusCompleted
	tr.StripeTransferID = stripeTransferID
	tr.Error = ""
	tr.ProcessedAt = &at
	return nil
}

func (r *fakeRepository) MarkTransferFailed(id uint, errMsg string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tr, ok := r.transfers[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	tr.Status = models.TransferStatusFailed
	tr.Error = errMsg
	tr.ProcessedAt = &at
	return nil
}

func (r *fakeRepository) MarkTransferFailedByStripeTransferID(stripeTransferID, errMsg string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tr := range r.transfers {
		if tr.StripeTransferID == stripeTransferID {
			tr.Status = models.TransferStatusFailed
			tr.Error = errMsg
			tr.ProcessedAt = &at
		}
	}
	return nil
}

func (r *fakeRepository) CreateEventIfNotExists(event *models.StripeEvent) (bool, *models.StripeEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stored, ok := r.events[event.StripeEventID]; ok {
		cp := *stored
		return false, &cp, nil
	}
	r.nextEventID++
	event.ID = r.nextEventID
	cp := *event
	r.events[cp.StripeEventID] = &cp
	out := cp
	return true, &out, nil
}

func (r *fakeRepository) MarkEventProcessed(id uint, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.ID == id {
			now := time.Now()
			ev.ProcessedAt = &now
			ev.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakeRepository) user(id uint) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.users[id]
	return &cp
}

func (r *fakeRepository) transfer(id uint) *models.AffiliateTransfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.transfers[id]
	return &cp
}

func (r *fakeRepository) referral(id uint) *models.AffiliateReferral {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.referrals[id]
	return &cp
}

func (r *fakeRepository) event(stripeEventID string) *models.StripeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev, ok := r.events[stripeEventID]; ok {
		cp := *ev
		return &cp
	}
	return nil
}

func (r *fakeRepository) eventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// stubProcessor is a canned ProcessorClient.
type stubProcessor struct {
	mu sync.Mutex

	customers     map[string]*Customer
	subscriptions map[string]*Subscription

	transferErr      error
	failDestinations map[string]error
	reverseErr       error
	createdTransfers []Transfer
	reversedIDs      []string
	nextTransferSeq  int
}

func newStubProcessor() *stubProcessor {
	return &stubProcessor{
		customers:     map[string]*Customer{},
		subscriptions: map[string]*Subscription{},
	}
}

func (p *stubProcessor) RetrieveCustomer(ctx context.Context, customerID string) (*Customer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.customers[customerID]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, &APIError{StatusCode: 404, Code: "resource_missing", Message: "no such customer"}
}

func (p *stubProcessor) RetrieveSubscription(ctx context.Context, subscriptionID, idempotencyKey string) (*Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.subscriptions[subscriptionID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, &APIError{StatusCode: 404, Code: "resource_missing", Message: "no such subscription"}
}

func (p *stubProcessor) CreateTransfer(ctx context.Context, amountMinor int64, currency, destination string) (*Transfer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.transferErr != nil {
		return nil, p.transferErr
	}
	if err, ok := p.failDestinations[destination]; ok {
		return nil, err
	}
	p.nextTransferSeq++
	tr := Transfer{
		ID:          fmt.Sprintf("tr_%d", p.nextTransferSeq),
		Amount:      amountMinor,
		Currency:    currency,
		Destination: destination,
	}
	p.createdTransfers = append(p.createdTransfers, tr)
	cp := tr
	return &cp, nil
}

func (p *stubProcessor) ReverseTransfer(ctx context.Context, transferID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reverseErr != nil {
		return p.reverseErr
	}
	p.reversedIDs = append(p.reversedIDs, transferID)
	return nil
}

var errProcessorDown = errors.New("processor unavailable")
