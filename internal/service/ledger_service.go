package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/richardliu001/tipster-ledger/internal/model"
	"github.com/richardliu001/tipster-ledger/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrInvalidAmount means non-positive amount passed.
var ErrInvalidAmount = errors.New("amount must be positive")

// Options tune the ledger service.
type Options struct {
	PaymentIssuer         string
	AuthorizationCapacity int
}

// LedgerService applies settled payment events to wallets and serves the
// read side used by account and report pages.
type LedgerService struct {
	repo    repo.LedgerStore
	log     *zap.SugaredLogger
	issuer  string
	authCap int
}

// NewLedgerService returns LedgerService.
func NewLedgerService(r repo.LedgerStore, logger *zap.SugaredLogger, opts Options) *LedgerService {
	if opts.PaymentIssuer == "" {
		opts.PaymentIssuer = "PAYSTACK"
	}
	if opts.AuthorizationCapacity < 1 {
		opts.AuthorizationCapacity = model.DefaultAuthorizationCapacity
	}
	return &LedgerService{
		repo: r, log: logger,
		issuer: opts.PaymentIssuer, authCap: opts.AuthorizationCapacity,
	}
}

// DepositInput is a verified successful charge.
type DepositInput struct {
	Email         string
	Amount        decimal.Decimal
	Currency      string
	Channel       string
	Reference     string
	PaidAt        time.Time
	Authorization *model.Authorization
}

// SettleDeposit credits the customer's wallet exactly once per reference.
func (s *LedgerService) SettleDeposit(ctx context.Context, in DepositInput) (repo.Settlement, error) {
	if !in.Amount.IsPositive() {
		return repo.Settlement{}, ErrInvalidAmount
	}
	acct, err := s.repo.FindAccountByEmail(ctx, in.Email)
	if err != nil {
		return repo.Settlement{}, fmt.Errorf("deposit %s: %w", in.Reference, err)
	}
	cur, err := s.repo.GetCurrency(ctx, in.Currency)
	if err != nil {
		return repo.Settlement{}, fmt.Errorf("deposit %s: %w", in.Reference, err)
	}

	res, err := s.repo.ApplyDepositAtomic(ctx, repo.DepositRecord{
		AccountID:             acct.ID,
		Amount:                in.Amount,
		CurrencyCode:          cur.Code,
		Channel:               in.Channel,
		Reference:             in.Reference,
		PaymentIssuer:         s.issuer,
		PaidAt:                in.PaidAt,
		Authorization:         in.Authorization,
		AuthorizationCapacity: s.authCap,
	})
	if err != nil {
		return repo.Settlement{}, fmt.Errorf("deposit %s: %w", in.Reference, err)
	}
	if res.Duplicate {
		s.log.Infow("duplicate deposit delivery ignored",
			"reference", in.Reference, "account_id", acct.ID, "transaction_id", res.Transaction.ID)
		return res, nil
	}
	s.cacheBalance(ctx, res.Wallet)
	s.log.Infow("deposit settled",
		"reference", in.Reference, "account_id", acct.ID,
		"amount", in.Amount.String(), "balance", res.Wallet.Balance.String())
	return res, nil
}

// FinalizeWithdrawal marks a reserved withdrawal as paid out.
func (s *LedgerService) FinalizeWithdrawal(ctx context.Context, reference string, completedAt time.Time) (repo.Settlement, error) {
	res, err := s.repo.FinalizeWithdrawalAtomic(ctx, s.issuer, reference, completedAt)
	if err != nil {
		return repo.Settlement{}, fmt.Errorf("withdrawal %s: %w", reference, err)
	}
	if res.Duplicate {
		s.log.Infow("duplicate withdrawal completion ignored", "reference", reference)
		return res, nil
	}
	s.log.Infow("withdrawal succeeded", "reference", reference, "account_id", res.Transaction.AccountID)
	return res, nil
}

// FailWithdrawal marks a reserved withdrawal failed and refunds the wallet.
func (s *LedgerService) FailWithdrawal(ctx context.Context, reference string, failedAt time.Time, reason string) (repo.Settlement, error) {
	res, err := s.repo.FailWithdrawalAtomic(ctx, s.issuer, reference, failedAt, reason)
	if err != nil {
		return repo.Settlement{}, fmt.Errorf("withdrawal %s: %w", reference, err)
	}
	if res.Duplicate {
		s.log.Infow("duplicate withdrawal failure ignored", "reference", reference)
		return res, nil
	}
	s.cacheBalance(ctx, res.Wallet)
	s.log.Warnw("withdrawal failed, funds returned",
		"reference", reference, "account_id", res.Transaction.AccountID, "reason", reason)
	return res, nil
}

// WithdrawalInput requests a payout from an account's wallet.
type WithdrawalInput struct {
	AccountID uint64
	Amount    decimal.Decimal
	Currency  string
	Channel   string
	Reference string
}

// InitiateWithdrawal reserves funds for a payout. The provider later reports
// the outcome through transfer events carrying the returned reference.
func (s *LedgerService) InitiateWithdrawal(ctx context.Context, in WithdrawalInput) (*model.Transaction, error) {
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	acct, err := s.repo.GetAccount(ctx, in.AccountID)
	if err != nil {
		return nil, err
	}
	code := in.Currency
	if code == "" {
		code = acct.CurrencyCode
	}
	cur, err := s.repo.GetCurrency(ctx, code)
	if err != nil {
		return nil, err
	}
	if in.Reference == "" {
		in.Reference = "wd_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	if in.Channel == "" {
		in.Channel = "bank"
	}
	res, err := s.repo.ReserveWithdrawalAtomic(ctx, repo.WithdrawalRecord{
		AccountID: acct.ID, Amount: in.Amount, CurrencyCode: cur.Code,
		Channel: in.Channel, Reference: in.Reference, PaymentIssuer: s.issuer,
	})
	if err != nil {
		return nil, err
	}
	t := res.Transaction
	s.cacheBalance(ctx, res.Wallet)
	s.log.Infow("withdrawal reserved", "reference", t.Reference, "account_id", acct.ID, "amount", in.Amount.String())
	return t, nil
}

// CreateAccount registers the ledger side of a new user.
func (s *LedgerService) CreateAccount(ctx context.Context, userID uint64, email, currency string) (*model.Account, *model.Wallet, error) {
	if currency == "" {
		currency = "NGN"
	}
	cur, err := s.repo.GetCurrency(ctx, currency)
	if err != nil {
		return nil, nil, err
	}
	acct := &model.Account{UserID: userID, Email: email, CurrencyCode: cur.Code}
	w, err := s.repo.CreateAccount(ctx, acct)
	if err != nil {
		return nil, nil, err
	}
	return acct, w, nil
}

func (s *LedgerService) cacheBalance(ctx context.Context, w *model.Wallet) {
	if err := s.repo.CacheBalance(ctx, w.AccountID, w.Version, w.Balance); err != nil {
		s.log.Warnw("cache balance", "account_id", w.AccountID, "error", err)
	}
}
