// Package jwcrypto implements the signed-token formats of the protocol:
// certificates binding an email to a public key, assertions scoping a
// key holder's proof to an audience, and bundles chaining the two.
//
// Tokens are compact JWS (header.payload.signature). Timestamps inside
// payloads are milliseconds since the epoch.
package jwcrypto

import (
	"crypto"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/keys"
	"github.com/golang-jwt/jwt/v5"
)

// stdClaims carries the registered claims with millisecond precision.
type stdClaims struct {
	Issuer    string `json:"iss,omitempty"`
	Audience  string `json:"aud,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
	ExpiresAt int64  `json:"exp"`
}

func msDate(ms int64) *jwt.NumericDate {
	if ms == 0 {
		return nil
	}
	return jwt.NewNumericDate(time.UnixMilli(ms))
}

func (c stdClaims) GetExpirationTime() (*jwt.NumericDate, error) { return msDate(c.ExpiresAt), nil }
func (c stdClaims) GetIssuedAt() (*jwt.NumericDate, error)       { return msDate(c.IssuedAt), nil }
func (c stdClaims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c stdClaims) GetIssuer() (string, error)                   { return c.Issuer, nil }
func (c stdClaims) GetSubject() (string, error)                  { return "", nil }
func (c stdClaims) GetAudience() (jwt.ClaimStrings, error) {
	if c.Audience == "" {
		return nil, nil
	}
	return jwt.ClaimStrings{c.Audience}, nil
}

// Encode signs claims with priv and returns the compact token.
func Encode(claims jwt.Claims, priv crypto.Signer) (string, error) {
	method, err := keys.MethodFor(priv)
	if err != nil {
		return "", err
	}
	tok, err := jwt.NewWithClaims(method, claims).SignedString(priv)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrorCrypto, err)
	}
	return tok, nil
}

// signed is a decoded but not yet verified token.
type signed struct {
	raw          string
	alg          string
	signingInput string
	signature    []byte
}

// decode splits raw and unmarshals its payload into claims without
// checking the signature.
func decode(raw string, claims jwt.Claims) (*signed, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: token must have three segments", common.ErrorMalformedBundle)
	}

	tok, _, err := jwt.NewParser().ParseUnverified(raw, claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorMalformedBundle, err)
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: bad signature encoding", common.ErrorMalformedBundle)
	}

	return &signed{
		raw:          raw,
		alg:          tok.Method.Alg(),
		signingInput: parts[0] + "." + parts[1],
		signature:    sig,
	}, nil
}

// verify checks the signature against pub. The header algorithm must be
// the one implied by pub.
func (s *signed) verify(pub crypto.PublicKey) error {
	method, err := keys.MethodFor(pub)
	if err != nil {
		return err
	}
	if method.Alg() != s.alg {
		return fmt.Errorf("%w: algorithm %s does not match key", common.ErrorCrypto, s.alg)
	}
	return keys.Verify(pub, []byte(s.signingInput), s.signature)
}

// verifyAny succeeds if any one of pubs validates the signature. Keys are
// tried in order; key ids are not consulted.
func (s *signed) verifyAny(pubs []crypto.PublicKey) error {
	if len(pubs) == 0 {
		return fmt.Errorf("%w: no public keys", common.ErrorCrypto)
	}
	var err error
	for _, pub := range pubs {
		if err = s.verify(pub); err == nil {
			return nil
		}
	}
	return err
}
