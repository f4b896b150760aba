package jwcrypto

import (
	"crypto"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/keys"
)

type principal struct {
	Email string `json:"email"`
}

type certificateClaims struct {
	stdClaims
	PublicKey json.RawMessage `json:"public-key"`
	Principal principal       `json:"principal"`
}

// Certificate binds Email to PublicKey until ExpiresAt, as vouched for by Issuer.
type Certificate struct {
	Issuer    string
	Email     string
	PublicKey crypto.PublicKey
	IssuedAt  time.Time
	ExpiresAt time.Time

	token *signed
}

// Raw returns the compact token the certificate was parsed from.
func (c *Certificate) Raw() string { return c.token.raw }

// Domain is the part of Email after the last '@'.
func (c *Certificate) Domain() string {
	return EmailDomain(c.Email)
}

// VerifySignature checks the certificate against the issuer's key.
func (c *Certificate) VerifySignature(pub crypto.PublicKey) error {
	return c.token.verify(pub)
}

// VerifyAny checks the certificate against a set of candidate issuer keys.
func (c *Certificate) VerifyAny(pubs []crypto.PublicKey) error {
	return c.token.verifyAny(pubs)
}

// SignCertificate issues a certificate for email and pub, signed by issuerKey.
func SignCertificate(issuerKey crypto.Signer, issuer, email string, pub crypto.PublicKey, issuedAt, expiresAt time.Time) (string, error) {
	jwk, err := keys.MarshalPublicJWK(pub)
	if err != nil {
		return "", err
	}

	return Encode(certificateClaims{
		stdClaims: stdClaims{
			Issuer:    issuer,
			IssuedAt:  issuedAt.UnixMilli(),
			ExpiresAt: expiresAt.UnixMilli(),
		},
		PublicKey: jwk,
		Principal: principal{Email: email},
	}, issuerKey)
}

// ParseCertificate decodes raw without verifying its signature.
func ParseCertificate(raw string) (*Certificate, error) {
	var claims certificateClaims
	tok, err := decode(raw, &claims)
	if err != nil {
		return nil, err
	}

	switch {
	case claims.Issuer == "":
		return nil, fmt.Errorf("%w: certificate has no issuer", common.ErrorMalformedBundle)
	case claims.Principal.Email == "":
		return nil, fmt.Errorf("%w: certificate has no principal", common.ErrorMalformedBundle)
	case claims.ExpiresAt == 0:
		return nil, fmt.Errorf("%w: certificate has no expiry", common.ErrorMalformedBundle)
	case len(claims.PublicKey) == 0:
		return nil, fmt.Errorf("%w: certificate has no public key", common.ErrorMalformedBundle)
	}

	pub, err := keys.ParsePublicJWK(claims.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorMalformedBundle, err)
	}

	return &Certificate{
		Issuer:    claims.Issuer,
		Email:     claims.Principal.Email,
		PublicKey: pub,
		IssuedAt:  time.UnixMilli(claims.IssuedAt),
		ExpiresAt: time.UnixMilli(claims.ExpiresAt),
		token:     tok,
	}, nil
}

// EmailDomain returns the lower-cased domain part of an address, or ""
// when the address has none.
func EmailDomain(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 || i == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[i+1:])
}
