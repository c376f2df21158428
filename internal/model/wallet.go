package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultAuthorizationCapacity bounds Wallet.Authorizations.
const DefaultAuthorizationCapacity = 5

type Wallet struct {
	ID             uint64          `gorm:"primaryKey;column:id" json:"id"`
	AccountID      uint64          `gorm:"uniqueIndex;not null" json:"account_id"`
	Balance        decimal.Decimal `gorm:"type:numeric(20,8);not null;default:'0'" json:"balance"`
	Authorizations Authorizations  `gorm:"type:jsonb" json:"authorizations"`
	Version        uint64          `gorm:"not null;default:0" json:"-"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string { return "wallet" }

// Authorization is a reusable charge authorization issued by the provider.
type Authorization struct {
	AuthorizationCode string `json:"authorization_code"`
	Bin               string `json:"bin,omitempty"`
	Last4             string `json:"last4,omitempty"`
	ExpMonth          string `json:"exp_month,omitempty"`
	ExpYear           string `json:"exp_year,omitempty"`
	Channel           string `json:"channel,omitempty"`
	CardType          string `json:"card_type,omitempty"`
	Bank              string `json:"bank,omitempty"`
	CountryCode       string `json:"country_code,omitempty"`
	Brand             string `json:"brand,omitempty"`
	Reusable          bool   `json:"reusable"`
	Signature         string `json:"signature,omitempty"`
	AccountName       string `json:"account_name,omitempty"`
}

// Authorizations is ordered newest first.
type Authorizations []Authorization

// Push returns a new list with a in front, truncated to capacity.
// The receiver is never modified.
func (as Authorizations) Push(a Authorization, capacity int) Authorizations {
	if capacity < 1 {
		capacity = DefaultAuthorizationCapacity
	}
	n := len(as) + 1
	if n > capacity {
		n = capacity
	}
	out := make(Authorizations, 0, n)
	out = append(out, a)
	for _, prev := range as {
		if len(out) == n {
			break
		}
		out = append(out, prev)
	}
	return out
}

// Value stores the list as a JSON array.
func (as Authorizations) Value() (driver.Value, error) {
	if as == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]Authorization(as))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads a JSON array written by Value.
func (as *Authorizations) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*as = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("authorizations: unsupported scan type %T", src)
	}
	var out []Authorization
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("authorizations: %w", err)
	}
	*as = out
	return nil
}
