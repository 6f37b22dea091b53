// Package models defines server-side data models persisted in the database.
package models

import "time"

type User struct {
	ID        string
	UserName  string
	FullName  string
	Email     string
	KYCStatus string
	Salt      []byte
	Verifier  []byte
	CreatedAt time.Time
}

// CurrencyPreference is a settlement currency a user can send from, in the
// order the user listed them.
type CurrencyPreference struct {
	UserID      string
	Code        string
	Name        string
	Symbol      string
	Multiplier  float64
	Decimals    int
	MinSendable int64
	MaxSendable int64
}
