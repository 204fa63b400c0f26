package billing

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"github.com/velora-app/velora/app/models"
	"gorm.io/gorm"
)

// commissionRate is the affiliate's share of a referred user's first payment.
var commissionRate = decimal.NewFromFloat(0.5)

var oneHundred = decimal.NewFromInt(100)

// CommissionForAmount computes the commission for a gross session total given
// in minor currency units, as a major-unit decimal rounded to cents.
func CommissionForAmount(amountTotalMinor int64) decimal.Decimal {
	return decimal.NewFromInt(amountTotalMinor).Div(oneHundred).Mul(commissionRate).Round(2)
}

// ProcessCommission converts the referred user's pending referral, credits
// the affiliate's earnings and queues a payout transfer. The status-checked
// referral conversion is what makes the whole operation idempotent under
// at-least-once delivery: a replayed event finds no pending referral and the
// earnings are never credited twice.
func (s *Service) ProcessCommission(ctx context.Context, session *CheckoutSession, referredUser *models.User) error {
	_ = ctx

	referral, err := s.repo.FindPendingReferral(referredUser.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Not a referred signup.
			return nil
		}
		return err
	}

	affiliate, err := s.repo.GetUserByID(referral.ReferrerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("billing: referral %d points at missing affiliate %d, skipping commission", referral.ID, referral.ReferrerID)
			return nil
		}
		return err
	}

	amount := CommissionForAmount(session.AmountTotal)

	converted, err := s.repo.ConvertReferral(referral.ID, amount, time.Now())
	if err != nil {
		return err
	}
	if !converted {
		log.Printf("billing: referral %d already converted, skipping commission", referral.ID)
		return nil
	}

	if err := s.repo.AddAffiliateEarnings(affiliate.ID, amount); err != nil {
		return err
	}

	if affiliate.CanReceivePayouts() {
		return s.repo.CreateTransfer(&models.AffiliateTransfer{
			AffiliateID: affiliate.ID,
			Amount:      amount,
			Status:      models.TransferStatusPending,
			SessionID:   session.ID,
		})
	}
	// Earnings still accrue; the transfer waits until the affiliate
	// configures a payout destination.
	return nil
}

// HandleRefund reverses the affiliate side of a refunded charge. The total
// earnings decrement happens even when the upstream reversal call fails: a
// balance that needs manual reconciliation beats one that is silently wrong.
// Transfers still pending or failed at refund time are left untouched, which
// is a known reconciliation gap.
func (s *Service) HandleRefund(ctx context.Context, charge *Charge) error {
	transfer, err := s.repo.FindTransferBySessionID(charge.PaymentIntent)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	if transfer.Status != models.TransferStatusCompleted || transfer.StripeTransferID == "" {
		return nil
	}

	if err := s.processor.ReverseTransfer(ctx, transfer.StripeTransferID); err != nil {
		log.Printf("billing: reversing transfer %s failed: %v", transfer.StripeTransferID, err)
	}

	return s.repo.DecrementTotalEarnings(transfer.AffiliateID, transfer.Amount)
}
