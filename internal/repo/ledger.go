package repo

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/richardliu001/tipster-ledger/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Settlement is the result of applying one provider event.
// Duplicate means the event had already been applied and nothing changed.
type Settlement struct {
	Transaction *model.Transaction
	Wallet      *model.Wallet
	Duplicate   bool
}

// DepositRecord carries a verified charge into the ledger.
type DepositRecord struct {
	AccountID             uint64
	Amount                decimal.Decimal
	CurrencyCode          string
	Channel               string
	Reference             string
	PaymentIssuer         string
	PaidAt                time.Time
	Authorization         *model.Authorization
	AuthorizationCapacity int
}

// WithdrawalRecord reserves funds for a payout that the provider settles later.
type WithdrawalRecord struct {
	AccountID     uint64
	Amount        decimal.Decimal
	CurrencyCode  string
	Channel       string
	Reference     string
	PaymentIssuer string
}

func (r *Repository) findByReference(ctx context.Context, tx *gorm.DB, issuer, reference string, lock bool) (*model.Transaction, error) {
	q := tx.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var t model.Transaction
	if err := q.Where("payment_issuer = ? AND reference = ?", issuer, reference).First(&t).Error; err != nil {
		return nil, notFound(err, ErrTransactionNotFound)
	}
	return &t, nil
}

func isSettledDeposit(t *model.Transaction, accountID uint64) bool {
	return t.Type == model.TransactionDeposit && t.Status == model.StatusSucceeded && t.AccountID == accountID
}

// ApplyDepositAtomic credits the wallet, records the charge authorization and
// inserts a SUCCEEDED deposit in one transaction. The wallet row lock
// serializes deliveries for the same account; the (issuer, reference) unique
// index catches anything that slips past it.
func (r *Repository) ApplyDepositAtomic(ctx context.Context, rec DepositRecord) (Settlement, error) {
	var out Settlement
	err := r.DB(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := r.GetWalletForUpdate(ctx, tx, rec.AccountID)
		if err != nil {
			return err
		}

		existing, err := r.findByReference(ctx, tx, rec.PaymentIssuer, rec.Reference, false)
		switch {
		case err == nil:
			if !isSettledDeposit(existing, rec.AccountID) {
				return fmt.Errorf("%w: %s", ErrReferenceConflict, rec.Reference)
			}
			out = Settlement{Transaction: existing, Wallet: w, Duplicate: true}
			return nil
		case !errors.Is(err, ErrTransactionNotFound):
			return err
		}

		auths := w.Authorizations
		if rec.Authorization != nil && rec.Authorization.AuthorizationCode != "" {
			auths = auths.Push(*rec.Authorization, rec.AuthorizationCapacity)
		}
		newBal := w.Balance.Add(rec.Amount)
		if err := r.UpdateWallet(ctx, tx, w.ID, newBal, auths, w.Version); err != nil {
			return err
		}

		paidAt := rec.PaidAt
		t := &model.Transaction{
			AccountID: rec.AccountID, WalletID: w.ID,
			Type: model.TransactionDeposit, Status: model.StatusSucceeded,
			Amount: rec.Amount, CurrencyCode: rec.CurrencyCode, Channel: rec.Channel,
			Reference: rec.Reference, PaymentIssuer: rec.PaymentIssuer,
			BalanceAfter: newBal, CompletedAt: &paidAt,
		}
		if err := r.CreateTransaction(ctx, tx, t); err != nil {
			return err
		}
		evt, err := newOutboxEvent(model.EventDepositSettled, rec.AccountID, map[string]interface{}{
			"account_id": rec.AccountID, "reference": rec.Reference, "amount": rec.Amount,
			"currency": rec.CurrencyCode, "balance": newBal,
		})
		if err != nil {
			return err
		}
		if err := r.CreateOutboxEvent(ctx, tx, evt); err != nil {
			return err
		}

		w.Balance, w.Authorizations, w.Version = newBal, auths, w.Version+1
		out = Settlement{Transaction: t, Wallet: w}
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		existing, ferr := r.FindByReference(ctx, rec.PaymentIssuer, rec.Reference)
		if ferr == nil && isSettledDeposit(existing, rec.AccountID) {
			return Settlement{Transaction: existing, Duplicate: true}, nil
		}
		return Settlement{}, fmt.Errorf("%w: %s", ErrReferenceConflict, rec.Reference)
	}
	if err != nil {
		return Settlement{}, classify(err)
	}
	return out, nil
}

// ReserveWithdrawalAtomic debits the wallet and records a PENDING withdrawal.
func (r *Repository) ReserveWithdrawalAtomic(ctx context.Context, rec WithdrawalRecord) (Settlement, error) {
	var out Settlement
	err := r.DB(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := r.GetWalletForUpdate(ctx, tx, rec.AccountID)
		if err != nil {
			return err
		}
		if w.Balance.LessThan(rec.Amount) {
			return ErrInsufficientFunds
		}
		newBal := w.Balance.Sub(rec.Amount)
		if err := r.UpdateWallet(ctx, tx, w.ID, newBal, w.Authorizations, w.Version); err != nil {
			return err
		}
		t := &model.Transaction{
			AccountID: rec.AccountID, WalletID: w.ID,
			Type: model.TransactionWithdrawal, Status: model.StatusPending,
			Amount: rec.Amount, CurrencyCode: rec.CurrencyCode, Channel: rec.Channel,
			Reference: rec.Reference, PaymentIssuer: rec.PaymentIssuer,
			BalanceAfter: newBal,
		}
		if err := r.CreateTransaction(ctx, tx, t); err != nil {
			return err
		}
		evt, err := newOutboxEvent(model.EventWithdrawalInitiated, rec.AccountID, map[string]interface{}{
			"account_id": rec.AccountID, "reference": rec.Reference, "amount": rec.Amount,
			"currency": rec.CurrencyCode, "balance": newBal,
		})
		if err != nil {
			return err
		}
		if err := r.CreateOutboxEvent(ctx, tx, evt); err != nil {
			return err
		}
		w.Balance, w.Version = newBal, w.Version+1
		out = Settlement{Transaction: t, Wallet: w}
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return Settlement{}, fmt.Errorf("%w: %s", ErrReferenceConflict, rec.Reference)
	}
	if err != nil {
		return Settlement{}, classify(err)
	}
	return out, nil
}

// lockPendingWithdrawal loads and locks the withdrawal for reference.
// It returns done=true when the row is already in the wanted status.
func (r *Repository) lockPendingWithdrawal(ctx context.Context, tx *gorm.DB, issuer, reference string, want model.TransactionStatus) (*model.Transaction, bool, error) {
	t, err := r.findByReference(ctx, tx, issuer, reference, true)
	if err != nil {
		return nil, false, err
	}
	if t.Type != model.TransactionWithdrawal {
		return nil, false, fmt.Errorf("%w: %s is a %s", ErrReferenceConflict, reference, t.Type)
	}
	switch {
	case t.Status == want:
		return t, true, nil
	case t.Settled():
		return nil, false, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, reference, t.Status)
	}
	return t, false, nil
}

const maxFailureReason = 255

// truncateReason cuts s to at most maxFailureReason runes.
func truncateReason(s string) string {
	if utf8.RuneCountInString(s) <= maxFailureReason {
		return s
	}
	n := 0
	for i := range s {
		if n == maxFailureReason {
			return s[:i]
		}
		n++
	}
	return s
}

func (r *Repository) setStatus(ctx context.Context, tx *gorm.DB, t *model.Transaction, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	res := tx.WithContext(ctx).Model(&model.Transaction{}).
		Where("id = ? AND status = ?", t.ID, model.StatusPending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, t.Reference)
	}
	return nil
}

// FinalizeWithdrawalAtomic marks a PENDING withdrawal SUCCEEDED. The balance
// was already debited when the withdrawal was reserved.
func (r *Repository) FinalizeWithdrawalAtomic(ctx context.Context, issuer, reference string, completedAt time.Time) (Settlement, error) {
	var out Settlement
	err := r.DB(ctx).Transaction(func(tx *gorm.DB) error {
		t, done, err := r.lockPendingWithdrawal(ctx, tx, issuer, reference, model.StatusSucceeded)
		if err != nil {
			return err
		}
		if done {
			out = Settlement{Transaction: t, Duplicate: true}
			return nil
		}
		if err := r.setStatus(ctx, tx, t, map[string]interface{}{
			"status":       model.StatusSucceeded,
			"completed_at": completedAt,
		}); err != nil {
			return err
		}
		t.Status, t.CompletedAt = model.StatusSucceeded, &completedAt

		evt, err := newOutboxEvent(model.EventWithdrawalSucceeded, t.AccountID, map[string]interface{}{
			"account_id": t.AccountID, "reference": reference, "amount": t.Amount, "completed_at": completedAt,
		})
		if err != nil {
			return err
		}
		if err := r.CreateOutboxEvent(ctx, tx, evt); err != nil {
			return err
		}
		out = Settlement{Transaction: t}
		return nil
	})
	if err != nil {
		return Settlement{}, classify(err)
	}
	return out, nil
}

// FailWithdrawalAtomic marks a PENDING withdrawal FAILED and returns the
// reserved amount to the wallet.
func (r *Repository) FailWithdrawalAtomic(ctx context.Context, issuer, reference string, failedAt time.Time, reason string) (Settlement, error) {
	var out Settlement
	err := r.DB(ctx).Transaction(func(tx *gorm.DB) error {
		t, done, err := r.lockPendingWithdrawal(ctx, tx, issuer, reference, model.StatusFailed)
		if err != nil {
			return err
		}
		if done {
			out = Settlement{Transaction: t, Duplicate: true}
			return nil
		}

		w, err := r.GetWalletForUpdate(ctx, tx, t.AccountID)
		if err != nil {
			return err
		}
		newBal := w.Balance.Add(t.Amount)
		if err := r.UpdateWallet(ctx, tx, w.ID, newBal, w.Authorizations, w.Version); err != nil {
			return err
		}
		reason = truncateReason(reason)
		if err := r.setStatus(ctx, tx, t, map[string]interface{}{
			"status":         model.StatusFailed,
			"completed_at":   failedAt,
			"failure_reason": reason,
			"balance_after":  newBal,
		}); err != nil {
			return err
		}
		t.Status, t.CompletedAt, t.FailureReason, t.BalanceAfter = model.StatusFailed, &failedAt, reason, newBal

		evt, err := newOutboxEvent(model.EventWithdrawalFailed, t.AccountID, map[string]interface{}{
			"account_id": t.AccountID, "reference": reference, "amount": t.Amount,
			"reason": reason, "balance": newBal,
		})
		if err != nil {
			return err
		}
		if err := r.CreateOutboxEvent(ctx, tx, evt); err != nil {
			return err
		}
		w.Balance, w.Version = newBal, w.Version+1
		out = Settlement{Transaction: t, Wallet: w}
		return nil
	})
	if err != nil {
		return Settlement{}, classify(err)
	}
	return out, nil
}
