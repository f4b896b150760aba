package models

import (
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/common"
)

// Purpose says what consuming a verification secret accomplishes.
type Purpose string

const (
	PurposeCreateAccount Purpose = "create-account"
	PurposeAddEmail      Purpose = "add-email"
	PurposeResetPassword Purpose = "reset-password"
)

// ParsePurpose validates a stored or supplied purpose string.
func ParsePurpose(s string) (Purpose, error) {
	switch p := Purpose(s); p {
	case PurposeCreateAccount, PurposeAddEmail, PurposeResetPassword:
		return p, nil
	default:
		return "", common.ErrorUnknownPurpose
	}
}

// VerificationSecret is a one-time token proving control of Email.
// AccountID is set for add-email and reset-password secrets.
type VerificationSecret struct {
	Token     string
	Purpose   Purpose
	Email     string
	AccountID string
	Site      string
	IssuedAt  time.Time
}

// Expired reports whether the secret is older than ttl at now.
// A non-positive ttl never expires.
func (s *VerificationSecret) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && !now.Before(s.IssuedAt.Add(ttl))
}
