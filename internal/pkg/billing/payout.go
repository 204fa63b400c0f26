package billing

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"github.com/velora-app/velora/app/models"
)

const payoutCurrency = "usd"

// SweepPendingTransfers attempts every pending payout transfer once. Each
// attempt is independent: one failure never aborts the rest of the sweep, and
// no error propagates to the caller. Failed transfers stay failed until a
// human or a corrective process re-enqueues them.
func (s *Service) SweepPendingTransfers(ctx context.Context) {
	transfers, err := s.repo.ListPendingTransfers()
	if err != nil {
		log.Printf("billing: listing pending transfers failed: %v", err)
		return
	}

	for i := range transfers {
		s.processPendingTransfer(ctx, &transfers[i])
	}
}

func (s *Service) processPendingTransfer(ctx context.Context, transfer *models.AffiliateTransfer) {
	affiliate, err := s.repo.GetUserByID(transfer.AffiliateID)
	if err != nil {
		s.failTransfer(transfer.ID, "affiliate lookup failed: "+err.Error())
		return
	}
	if !affiliate.CanReceivePayouts() {
		s.failTransfer(transfer.ID, "affiliate has no payout destination")
		return
	}

	amountMinor := transfer.Amount.Mul(decimal.NewFromInt(100)).IntPart()

	out, err := s.processor.CreateTransfer(ctx, amountMinor, payoutCurrency, affiliate.StripeConnectAccountID)
	if err != nil {
		s.failTransfer(transfer.ID, err.Error())
		return
	}

	now := time.Now()
	if err := s.repo.MarkTransferCompleted(transfer.ID, out.ID, now); err != nil {
		log.Printf("billing: marking transfer %d completed failed: %v", transfer.ID, err)
		return
	}
	if err := s.repo.DecrementUnpaidEarnings(transfer.AffiliateID, transfer.Amount); err != nil {
		log.Printf("billing: decrementing unpaid earnings for affiliate %d failed: %v", transfer.AffiliateID, err)
	}
}

func (s *Service) failTransfer(id uint, detail string) {
	log.Printf("billing: transfer %d failed: %s", id, detail)
	if err := s.repo.MarkTransferFailed(id, detail, time.Now()); err != nil {
		log.Printf("billing: marking transfer %d failed errored: %v", id, err)
	}
}
