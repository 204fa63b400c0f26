package billing

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/velora-app/velora/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the ledger capability set used by the billing service. No
// component reaches into a shared connection directly; everything mutable
// goes through here, and the earnings increments are single atomic UPDATE
// statements so concurrent commissions for one affiliate stay correct.
type Repository interface {
	GetUserByID(id uint) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByReferralCode(code string) (*models.User, error)
	BindStripeCustomer(userID uint, customerID string) (*models.User, error)
	UpdateUserByEmail(email string, updates map[string]interface{}) error
	SaveUser(user *models.User) error

	CreateReferral(ref *models.AffiliateReferral) error
	HasReferralForUser(referredUserID uint) (bool, error)
	FindPendingReferral(referredUserID uint) (*models.AffiliateReferral, error)
	ConvertReferral(id uint, amount decimal.Decimal, at time.Time) (bool, error)
	ListReferralsByReferrer(referrerID uint) ([]models.AffiliateReferral, error)

	AddAffiliateEarnings(userID uint, amount decimal.Decimal) error
	DecrementTotalEarnings(userID uint, amount decimal.Decimal) error
	DecrementUnpaidEarnings(userID uint, amount decimal.Decimal) error

	CreateTransfer(tr *models.AffiliateTransfer) error
	ListPendingTransfers() ([]models.AffiliateTransfer, error)
	FindTransferBySessionID(sessionID string) (*models.AffiliateTransfer, error)
	MarkTransferCompleted(id uint, stripeTransferID string, at time.Time) error
	MarkTransferFailed(id uint, errMsg string, at time.Time) error
	MarkTransferFailedByStripeTransferID(stripeTransferID, errMsg string, at time.Time) error

	CreateEventIfNotExists(event *models.StripeEvent) (bool, *models.StripeEvent, error)
	MarkEventProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) GetUserByReferralCode(code string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("referral_code = ?", code).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) BindStripeCustomer(userID uint, customerID string) (*models.User, error) {
	tx := r.db.Model(&models.User{}).Where("id = ?", userID).Update("stripe_customer_id", customerID)
	if tx.Error != nil {
		return nil, tx.Error
	}
	var user models.User
	if err := r.db.First(&user, userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) UpdateUserByEmail(email string, updates map[string]interface{}) error {
	return r.db.Model(&models.User{}).Where("email = ?", email).Updates(updates).Error
}

func (r *gormRepository) SaveUser(user *models.User) error {
	return r.db.Save(user).Error
}

func (r *gormRepository) CreateReferral(ref *models.AffiliateReferral) error {
	return r.db.Create(ref).Error
}

func (r *gormRepository) HasReferralForUser(referredUserID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.AffiliateReferral{}).
		Where("referred_user_id = ?", referredUserID).
		Count(&count).Error
	return count > 0, err
}

func (r *gormRepository) FindPendingReferral(referredUserID uint) (*models.AffiliateReferral, error) {
	var ref models.AffiliateReferral
	err := r.db.
		Where("referred_user_id = ? AND status = ?", referredUserID, models.ReferralStatusPending).
		First(&ref).Error
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// ConvertReferral transitions a referral pending -> converted. The status
// guard in the WHERE clause makes the transition one-way: a replayed event
// affects zero rows and the caller sees converted == false.
func (r *gormRepository) ConvertReferral(id uint, amount decimal.Decimal, at time.Time) (bool, error) {
	tx := r.db.Model(&models.AffiliateReferral{}).
		Where("id = ? AND status = ?", id, models.ReferralStatusPending).
		Updates(map[string]interface{}{
			"status":            models.ReferralStatusConverted,
			"commission_amount": amount,
			"converted_at":      &at,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) ListReferralsByReferrer(referrerID uint) ([]models.AffiliateReferral, error) {
	var refs []models.AffiliateReferral
	err := r.db.Where("referrer_id = ?", referrerID).Order("created_at DESC").Find(&refs).Error
	return refs, err
}

func (r *gormRepository) AddAffiliateEarnings(userID uint, amount decimal.Decimal) error {
	return r.db.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"total_affiliate_earnings":  gorm.Expr("total_affiliate_earnings + ?", amount),
		"unpaid_affiliate_earnings": gorm.Expr("unpaid_affiliate_earnings + ?", amount),
	}).Error
}

func (r *gormRepository) DecrementTotalEarnings(userID uint, amount decimal.Decimal) error {
	return r.db.Model(&models.User{}).Where("id = ?", userID).
		Update("total_affiliate_earnings", gorm.Expr("total_affiliate_earnings - ?", amount)).Error
}

func (r *gormRepository) DecrementUnpaidEarnings(userID uint, amount decimal.Decimal) error {
	return r.db.Model(&models.User{}).Where("id = ?", userID).
		Update("unpaid_affiliate_earnings", gorm.Expr("unpaid_affiliate_earnings - ?", amount)).Error
}

func (r *gormRepository) CreateTransfer(tr *models.AffiliateTransfer) error {
	return r.db.Create(tr).Error
}

func (r *gormRepository) ListPendingTransfers() ([]models.AffiliateTransfer, error) {
	var transfers []models.AffiliateTransfer
	err := r.db.Where("status = ?", models.TransferStatusPending).Order("id").Find(&transfers).Error
	return transfers, err
}

func (r *gormRepository) FindTransferBySessionID(sessionID string) (*models.AffiliateTransfer, error) {
	var tr models.AffiliateTransfer
	if err := r.db.Where("session_id = ?", sessionID).First(&tr).Error; err != nil {
		return nil, err
	}
	return &tr, nil
}

func (r *gormRepository) MarkTransferCompleted(id uint, stripeTransferID string, at time.Time) error {
	return r.db.Model(&models.AffiliateTransfer{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":             models.TransferStatusCompleted,
		"stripe_transfer_id": stripeTransferID,
		"error":              "",
		"processed_at":       &at,
	}).Error
}

func (r *gormRepository) MarkTransferFailed(id uint, errMsg string, at time.Time) error {
	return r.db.Model(&models.AffiliateTransfer{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       models.TransferStatusFailed,
		"error":        errMsg,
		"processed_at": &at,
	}).Error
}

func (r *gormRepository) MarkTransferFailedByStripeTransferID(stripeTransferID, errMsg string, at time.Time) error {
	return r.db.Model(&models.AffiliateTransfer{}).
		Where("stripe_transfer_id = ?", stripeTransferID).
		Updates(map[string]interface{}{
			"status":       models.TransferStatusFailed,
			"error":        errMsg,
			"processed_at": &at,
		}).Error
}

func (r *gormRepository) CreateEventIfNotExists(event *models.StripeEvent) (bool, *models.StripeEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.StripeEvent
	if err := r.db.Where("stripe_event_id = ?", event.StripeEventID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkEventProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.StripeEvent{}).Where("id = ?", id).Updates(updates).Error
}
