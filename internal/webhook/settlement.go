package webhook

import (
	"context"
	"time"

	"github.com/richardliu001/tipster-ledger/internal/repo"
	"github.com/richardliu001/tipster-ledger/internal/service"
)

// Settler is the ledger surface the provider events drive.
type Settler interface {
	SettleDeposit(ctx context.Context, in service.DepositInput) (repo.Settlement, error)
	FinalizeWithdrawal(ctx context.Context, reference string, completedAt time.Time) (repo.Settlement, error)
	FailWithdrawal(ctx context.Context, reference string, failedAt time.Time, reason string) (repo.Settlement, error)
}

// NewSettlementDispatcher maps provider events onto ledger settlement.
func NewSettlementDispatcher(s Settler) *Dispatcher {
	d := NewDispatcher()
	Handle(d, EventChargeSuccess, func(ctx context.Context, c ChargeSuccess) error {
		_, err := s.SettleDeposit(ctx, service.DepositInput{
			Email:         c.Customer.Email,
			Amount:        c.Amount,
			Currency:      c.Currency,
			Channel:       c.Channel,
			Reference:     c.Reference,
			PaidAt:        c.PaidAt,
			Authorization: c.Authorization,
		})
		return err
	})
	Handle(d, EventTransferSuccess, func(ctx context.Context, t Transfer) error {
		_, err := s.FinalizeWithdrawal(ctx, t.Reference, t.UpdatedAt)
		return err
	})
	failed := func(ctx context.Context, t Transfer) error {
		reason := t.Reason
		if reason == "" {
			reason = t.Status
		}
		_, err := s.FailWithdrawal(ctx, t.Reference, t.UpdatedAt, reason)
		return err
	}
	Handle(d, EventTransferFailed, failed)
	Handle(d, EventTransferReversed, failed)
	return d
}
