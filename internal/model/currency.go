package model

// Currency is reference data; the ledger only reads it.
type Currency struct {
	Code     string `gorm:"primaryKey;size:8" json:"code"`
	Name     string `gorm:"size:64;not null" json:"name"`
	Symbol   string `gorm:"size:8" json:"symbol"`
	Exponent int    `gorm:"not null;default:2" json:"exponent"`
}

func (Currency) TableName() string { return "currency" }

// DefaultCurrencies is seeded by the server on startup.
var DefaultCurrencies = []Currency{
	{Code: "NGN", Name: "Nigerian Naira", Symbol: "₦", Exponent: 2},
	{Code: "GHS", Name: "Ghanaian Cedi", Symbol: "GH₵", Exponent: 2},
	{Code: "ZAR", Name: "South African Rand", Symbol: "R", Exponent: 2},
	{Code: "KES", Name: "Kenyan Shilling", Symbol: "KSh", Exponent: 2},
	{Code: "USD", Name: "US Dollar", Symbol: "$", Exponent: 2},
}
