// Package models defines server-side records persisted by the repositories.
package models

import "time"

// Account owns a set of email addresses and a password hash.
type Account struct {
	ID           string
	PasswordHash string
	CreatedAt    time.Time
}

// Email is an address attached to an account. Address is the
// case-sensitive primary key; it belongs to at most one account.
type Email struct {
	Address   string
	AccountID string
	Verified  bool
	CreatedAt time.Time
}
