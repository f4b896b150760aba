// Package auth carries per-connection session state in a signed cookie.
// The server keeps no session table: the cookie is an HS256 JWT holding the
// CSRF token, the authenticated principal and pending staging tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Session is the state of one client connection.
type Session struct {
	CSRF string `json:"csrf,omitempty"`
	// Principal is the authenticated email, empty when not authenticated.
	Principal string `json:"principal,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	// AuthAt is the authentication time in milliseconds.
	AuthAt          int64  `json:"auth_at,omitempty"`
	PendingCreation string `json:"pending_creation,omitempty"`
	PendingAddition string `json:"pending_addition,omitempty"`
}

// Claims wraps Session with the registered expiry claim.
type Claims struct {
	jwt.RegisteredClaims
	Session
}

// GenerateToken signs s with secretKey. The cookie itself expires after
// validityDuration; authentication expiry is tracked separately in AuthAt.
func GenerateToken(s *Session, secretKey []byte, now time.Time, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		Session: *s,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetSessionFromToken verifies and decodes a session cookie. Expired,
// tampered or foreign tokens yield common.ErrorInvalidToken.
func GetSessionFromToken(tokenString string, secretKey []byte, now time.Time) (*Session, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: session expired", common.ErrorInvalidToken)
		}
		return nil, fmt.Errorf("%w: %v", common.ErrorInvalidToken, err)
	}

	if !token.Valid {
		return nil, common.ErrorInvalidToken
	}

	return &claims.Session, nil
}
