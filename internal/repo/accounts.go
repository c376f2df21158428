package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/richardliu001/tipster-ledger/internal/model"
	"gorm.io/gorm"
)

// NormalizeEmail is the canonical form used for account lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateAccount inserts the account and its empty wallet together.
func (r *Repository) CreateAccount(ctx context.Context, acct *model.Account) (*model.Wallet, error) {
	acct.Email = NormalizeEmail(acct.Email)
	w := &model.Wallet{}
	err := r.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(acct).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAccountExists
			}
			return err
		}
		w.AccountID = acct.ID
		return tx.Create(w).Error
	})
	if err != nil {
		return nil, classify(err)
	}
	return w, nil
}

func (r *Repository) GetAccount(ctx context.Context, id uint64) (*model.Account, error) {
	var a model.Account
	if err := r.DB(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, classify(notFound(err, ErrAccountNotFound))
	}
	return &a, nil
}

func (r *Repository) FindAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	var a model.Account
	if err := r.DB(ctx).Where("email = ?", NormalizeEmail(email)).First(&a).Error; err != nil {
		return nil, classify(notFound(err, ErrAccountNotFound))
	}
	return &a, nil
}

func (r *Repository) GetCurrency(ctx context.Context, code string) (*model.Currency, error) {
	var c model.Currency
	if err := r.DB(ctx).Where("code = ?", strings.ToUpper(code)).First(&c).Error; err != nil {
		return nil, classify(notFound(err, ErrUnknownCurrency))
	}
	return &c, nil
}

func (r *Repository) ListCurrencies(ctx context.Context) ([]model.Currency, error) {
	var cs []model.Currency
	if err := r.DB(ctx).Order("code").Find(&cs).Error; err != nil {
		return nil, classify(err)
	}
	return cs, nil
}

// SeedCurrencies inserts missing reference currencies.
func (r *Repository) SeedCurrencies(ctx context.Context, cs []model.Currency) error {
	for _, c := range cs {
		c := c
		if err := r.DB(ctx).Where(model.Currency{Code: c.Code}).FirstOrCreate(&c).Error; err != nil {
			return classify(err)
		}
	}
	return nil
}

func (r *Repository) GetWallet(ctx context.Context, accountID uint64) (*model.Wallet, error) {
	var w model.Wallet
	if err := r.DB(ctx).Where("account_id = ?", accountID).First(&w).Error; err != nil {
		return nil, classify(notFound(err, ErrWalletNotFound))
	}
	return &w, nil
}

// FindByReference looks a transaction up by its provider reference.
func (r *Repository) FindByReference(ctx context.Context, issuer, reference string) (*model.Transaction, error) {
	t, err := r.findByReference(ctx, r.db, issuer, reference, false)
	return t, classify(err)
}

// ListTransactions returns the account's history since the given time, oldest first.
func (r *Repository) ListTransactions(ctx context.Context, accountID uint64, limit int, since time.Time) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := r.DB(ctx).
		Where("account_id = ? AND created_at >= ?", accountID, since).
		Order("created_at asc, id asc").
		Limit(limit).
		Find(&txs).Error
	return txs, classify(err)
}
