package model

import "time"

// Account is the ledger-side view of a platform user. Email is stored
// lowercased; it is how the payment provider identifies the customer.
type Account struct {
	ID           uint64    `gorm:"primaryKey" json:"id"`
	UserID       uint64    `gorm:"uniqueIndex;not null" json:"user_id"`
	Email        string    `gorm:"size:254;uniqueIndex;not null" json:"email"`
	CurrencyCode string    `gorm:"size:8;not null" json:"currency"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string { return "account" }
