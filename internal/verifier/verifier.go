// Package verifier checks assertion bundles on behalf of relying parties.
//
// A verification either accepts, yielding the certified email, or fails
// with a reason. Errors never escape Verify.
package verifier

import (
	"context"
	"crypto"
	"errors"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/clock"
	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/discovery"
	"github.com/dmitrijs2005/idkeeper/internal/jwcrypto"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
)

const (
	StatusOkay    = "okay"
	StatusFailure = "failure"
)

// Failure reasons.
const (
	ReasonMalformed        = "malformed assertion"
	ReasonMissingAudience  = "missing audience"
	ReasonAudienceMismatch = "audience mismatch"
	ReasonExpired          = "expired"
	ReasonBadSignature     = "bad signature"
	ReasonNoPublicKeys     = "no public keys"
	ReasonUntrustedIssuer  = "issuer may not speak for this email"
	ReasonKeyLookupFailed  = "can't get public key for issuer"
)

// Result is the outcome of one verification. Expires is in milliseconds.
type Result struct {
	Status   string `json:"status"`
	Email    string `json:"email,omitempty"`
	Audience string `json:"audience,omitempty"`
	Issuer   string `json:"issuer,omitempty"`
	Expires  int64  `json:"expires,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// OK reports whether the bundle was accepted.
func (r Result) OK() bool { return r.Status == StatusOkay }

func failed(reason string) Result {
	return Result{Status: StatusFailure, Reason: reason}
}

// KeyResolver looks up identity-provider keys by discovery.
type KeyResolver interface {
	Lookup(ctx context.Context, domain, address string) (*discovery.Result, error)
}

// IssuerKeys yields the public keys of the trusted issuing server.
type IssuerKeys interface {
	PublicKeys(ctx context.Context) ([]crypto.PublicKey, error)
}

type Verifier struct {
	issuer     string
	issuerKeys IssuerKeys
	resolver   KeyResolver
	clock      clock.Clock
	logger     logging.Logger
}

// New builds a Verifier trusting issuer, whose keys come from issuerKeys.
// Certificates from any other issuer are checked against keys found by
// resolver.
func New(issuer string, issuerKeys IssuerKeys, resolver KeyResolver, clk clock.Clock, logger logging.Logger) *Verifier {
	return &Verifier{
		issuer:     issuer,
		issuerKeys: issuerKeys,
		resolver:   resolver,
		clock:      clk,
		logger:     logger.With("module", "verifier"),
	}
}

// Verify checks an encoded bundle against audience, comparing the
// audience byte for byte. The checks run in a fixed order: structure,
// audience, expiry of the assertion and every certificate, chain trust,
// and finally the assertion signature.
func (v *Verifier) Verify(ctx context.Context, encoded, audience string) Result {
	res := v.verify(ctx, encoded, audience)
	if res.OK() {
		v.logger.Info(ctx, "assertion accepted", "email", res.Email, "audience", res.Audience, "issuer", res.Issuer)
	} else {
		v.logger.Info(ctx, "assertion rejected", "audience", audience, "reason", res.Reason)
	}
	return res
}

func (v *Verifier) verify(ctx context.Context, encoded, audience string) Result {
	if audience == "" {
		return failed(ReasonMissingAudience)
	}

	bundle, err := jwcrypto.ParseBundle(encoded)
	if err != nil {
		return failed(ReasonMalformed)
	}
	certs := make([]*jwcrypto.Certificate, 0, len(bundle.Certificates))
	for _, raw := range bundle.Certificates {
		c, err := jwcrypto.ParseCertificate(raw)
		if err != nil {
			return failed(ReasonMalformed)
		}
		certs = append(certs, c)
	}
	assertion, err := jwcrypto.ParseAssertion(bundle.Assertion)
	if err != nil {
		return failed(ReasonMalformed)
	}

	if assertion.Audience != audience {
		return failed(ReasonAudienceMismatch)
	}

	now := v.clock.Now()
	if expired(now, assertion.ExpiresAt) {
		return failed(ReasonExpired)
	}
	for _, c := range certs {
		if expired(now, c.ExpiresAt) {
			return failed(ReasonExpired)
		}
	}

	leaf := certs[len(certs)-1]
	root := certs[0]

	if reason := v.verifyChain(ctx, certs, leaf.Email); reason != "" {
		return failed(reason)
	}

	if err := assertion.VerifySignature(leaf.PublicKey); err != nil {
		return failed(ReasonBadSignature)
	}

	return Result{
		Status:   StatusOkay,
		Email:    leaf.Email,
		Audience: assertion.Audience,
		Issuer:   root.Issuer,
		Expires:  assertion.ExpiresAt.UnixMilli(),
	}
}

// expired is true from the expiry instant on.
func expired(now, expiresAt time.Time) bool {
	return !now.Before(expiresAt)
}

// verifyChain checks the root certificate against its issuer's keys and
// every later certificate against the key certified by its predecessor.
// It returns a failure reason, or "" when the chain is trusted.
func (v *Verifier) verifyChain(ctx context.Context, certs []*jwcrypto.Certificate, email string) string {
	root := certs[0]

	keys, reason := v.rootKeys(ctx, root.Issuer, email)
	if reason != "" {
		return reason
	}
	if len(keys) == 0 {
		return ReasonNoPublicKeys
	}
	if err := root.VerifyAny(keys); err != nil {
		return ReasonBadSignature
	}

	for i := 1; i < len(certs); i++ {
		if err := certs[i].VerifySignature(certs[i-1].PublicKey); err != nil {
			return ReasonBadSignature
		}
	}
	return ""
}

// rootKeys finds the keys allowed to sign the root certificate. A foreign
// issuer may only vouch for addresses in its own domain.
func (v *Verifier) rootKeys(ctx context.Context, issuer, email string) ([]crypto.PublicKey, string) {
	if issuer == v.issuer {
		keys, err := v.issuerKeys.PublicKeys(ctx)
		if err != nil {
			v.logger.Warn(ctx, "issuer keys unavailable", "issuer", issuer, "error", err)
			return nil, ReasonKeyLookupFailed
		}
		return keys, ""
	}

	if v.resolver == nil || issuer != jwcrypto.EmailDomain(email) {
		return nil, ReasonUntrustedIssuer
	}

	res, err := v.resolver.Lookup(ctx, issuer, email)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return nil, ReasonNoPublicKeys
	case err != nil:
		v.logger.Warn(ctx, "discovery failed", "issuer", issuer, "error", err)
		return nil, ReasonKeyLookupFailed
	}
	return res.PublicKeys(), ""
}
