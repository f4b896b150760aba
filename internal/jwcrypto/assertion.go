package jwcrypto

import (
	"crypto"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/common"
)

type assertionClaims struct {
	stdClaims
}

// Assertion proves possession of a certified key to one audience until ExpiresAt.
type Assertion struct {
	Audience  string
	ExpiresAt time.Time

	token *signed
}

// VerifySignature checks the assertion against the certified subject key.
func (a *Assertion) VerifySignature(pub crypto.PublicKey) error {
	return a.token.verify(pub)
}

// SignAssertion signs an assertion for audience with the subject's private key.
func SignAssertion(priv crypto.Signer, audience string, expiresAt time.Time) (string, error) {
	return Encode(assertionClaims{stdClaims{
		Audience:  audience,
		ExpiresAt: expiresAt.UnixMilli(),
	}}, priv)
}

// ParseAssertion decodes raw without verifying its signature.
func ParseAssertion(raw string) (*Assertion, error) {
	var claims assertionClaims
	tok, err := decode(raw, &claims)
	if err != nil {
		return nil, err
	}
	if claims.Audience == "" || claims.ExpiresAt == 0 {
		return nil, fmt.Errorf("%w: assertion requires audience and expiry", common.ErrorMalformedBundle)
	}

	return &Assertion{
		Audience:  claims.Audience,
		ExpiresAt: time.UnixMilli(claims.ExpiresAt),
		token:     tok,
	}, nil
}

const bundleSeparator = "~"

// Bundle is a certificate chain (root first) followed by an assertion
// signed with the leaf certificate's key.
type Bundle struct {
	Certificates []string
	Assertion    string
}

// String encodes the bundle as cert~...~cert~assertion.
func (b Bundle) String() string {
	parts := append(append([]string{}, b.Certificates...), b.Assertion)
	return strings.Join(parts, bundleSeparator)
}

// ParseBundle splits an encoded bundle. It does not decode the tokens.
func ParseBundle(s string) (*Bundle, error) {
	parts := strings.Split(strings.TrimSpace(s), bundleSeparator)
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: bundle needs at least one certificate and an assertion", common.ErrorMalformedBundle)
	}
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%w: empty bundle segment", common.ErrorMalformedBundle)
		}
	}
	return &Bundle{Certificates: parts[:len(parts)-1], Assertion: parts[len(parts)-1]}, nil
}
