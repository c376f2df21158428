package service

import (
	"context"
	"time"

	"github.com/richardliu001/tipster-ledger/internal/model"
	"github.com/shopspring/decimal"
)

const maxHistoryLimit = 500

// GetWallet returns balance and stored authorizations.
func (s *LedgerService) GetWallet(ctx context.Context, accountID uint64) (*model.Wallet, error) {
	return s.repo.GetWallet(ctx, accountID)
}

// GetBalance returns current wallet balance, preferring the cache.
func (s *LedgerService) GetBalance(ctx context.Context, accountID uint64) (decimal.Decimal, error) {
	bal, err := s.repo.GetCachedBalance(ctx, accountID)
	if err == nil {
		return bal, nil
	}
	w, err := s.repo.GetWallet(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	s.cacheBalance(ctx, w)
	return w.Balance, nil
}

// GetHistory fetches recent transactions.
func (s *LedgerService) GetHistory(ctx context.Context, accountID uint64, limit int, since time.Time) ([]model.Transaction, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.repo.ListTransactions(ctx, accountID, limit, since)
}

// ListCurrencies returns the reference currency table.
func (s *LedgerService) ListCurrencies(ctx context.Context) ([]model.Currency, error) {
	return s.repo.ListCurrencies(ctx)
}
