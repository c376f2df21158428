package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionDeposit    TransactionType = "DEPOSIT"
	TransactionWithdrawal TransactionType = "WITHDRAWAL"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusSucceeded TransactionStatus = "SUCCEEDED"
	StatusFailed    TransactionStatus = "FAILED"
)

// Transaction is one provider-side money movement. (PaymentIssuer, Reference)
// is unique so a redelivered event can never be recorded twice.
type Transaction struct {
	ID            uint64            `gorm:"primaryKey" json:"id"`
	AccountID     uint64            `gorm:"index;not null" json:"account_id"`
	WalletID      uint64            `gorm:"not null" json:"wallet_id"`
	Type          TransactionType   `gorm:"size:16;not null" json:"type"`
	Status        TransactionStatus `gorm:"size:16;not null" json:"status"`
	Amount        decimal.Decimal   `gorm:"type:numeric(20,8);not null" json:"amount"`
	CurrencyCode  string            `gorm:"size:8;not null" json:"currency"`
	Channel       string            `gorm:"size:32" json:"channel"`
	Reference     string            `gorm:"size:128;not null;uniqueIndex:idx_transaction_issuer_reference" json:"reference"`
	PaymentIssuer string            `gorm:"size:32;not null;uniqueIndex:idx_transaction_issuer_reference" json:"payment_issuer"`
	BalanceAfter  decimal.Decimal   `gorm:"type:numeric(20,8);not null" json:"balance_after"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	FailureReason string            `gorm:"size:255" json:"failure_reason,omitempty"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Transaction) TableName() string { return "transaction" }

// Settled reports whether the status can no longer change.
func (t *Transaction) Settled() bool {
	return t.Status == StatusSucceeded || t.Status == StatusFailed
}
