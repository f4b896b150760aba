package services

import (
	"context"
	"crypto"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/idkeeper/internal/client/client"
	"github.com/dmitrijs2005/idkeeper/internal/clock"
	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/jwcrypto"
	"github.com/dmitrijs2005/idkeeper/internal/keys"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
)

var (
	// ErrNoCertificate is returned when no usable certificate could be
	// obtained for an address.
	ErrNoCertificate = errors.New("no usable certificate")
	// ErrNoProvisioner is returned for primary addresses when no identity
	// provider integration is configured.
	ErrNoProvisioner = errors.New("primary address needs an identity provider")
)

// Provisioner obtains a certificate chain for a primary address from its
// identity provider.
type Provisioner interface {
	Provision(ctx context.Context, email, discoveryURL string, pub crypto.PublicKey) ([]string, error)
}

// AssertionBuilder signs assertions with cached identities, certifying
// them first when needed.
type AssertionBuilder struct {
	api         client.Client
	session     *Session
	cache       *CredentialCache
	provisioner Provisioner
	alg         keys.Algorithm
	clock       clock.Clock
	logger      logging.Logger
}

// NewAssertionBuilder builds an AssertionBuilder. provisioner may be nil,
// in which case primary addresses cannot be certified.
func NewAssertionBuilder(api client.Client, session *Session, cache *CredentialCache, provisioner Provisioner, alg keys.Algorithm, clk clock.Clock, logger logging.Logger) *AssertionBuilder {
	return &AssertionBuilder{
		api:         api,
		session:     session,
		cache:       cache,
		provisioner: provisioner,
		alg:         alg,
		clock:       clk,
		logger:      logger.With("module", "assertions"),
	}
}

// GetAssertion returns an encoded bundle proving control of email to
// audience. Expiry is stamped in server time. A missing or stale
// certificate is replaced and the lookup retried, at most once for each
// kind of staleness.
func (b *AssertionBuilder) GetAssertion(ctx context.Context, email, audience string) (string, error) {
	if audience == "" {
		return "", fmt.Errorf("%w: missing audience", common.ErrorValidation)
	}

	tried := make(map[Staleness]bool)
	for {
		cc, err := b.session.Context(ctx)
		if err != nil {
			return "", err
		}
		now := cc.ServerNow(b.clock.Now())

		id, err := b.cache.Get(ctx, email, now, cc.DomainKeyCreationTime)
		if err != nil {
			return "", err
		}
		if id.Usable() {
			return b.sign(id, audience, cc)
		}

		if tried[id.Stale] {
			return "", fmt.Errorf("%w for %s (%s)", ErrNoCertificate, email, id.Stale)
		}
		tried[id.Stale] = true

		b.logger.Debug(ctx, "certifying identity", "email", email, "reason", string(id.Stale))
		if err := b.certify(ctx, cc, id); err != nil {
			return "", err
		}
	}
}

// Certify replaces the key and certificate of a cached address.
func (b *AssertionBuilder) Certify(ctx context.Context, email string) error {
	cc, err := b.session.Context(ctx)
	if err != nil {
		return err
	}
	id, err := b.cache.Get(ctx, email, cc.ServerNow(b.clock.Now()), cc.DomainKeyCreationTime)
	if err != nil {
		return err
	}
	return b.certify(ctx, cc, id)
}

func (b *AssertionBuilder) certify(ctx context.Context, cc *client.ClientContext, id *Identity) error {
	kp, err := keys.Generate(b.alg, cc.ServerNow(b.clock.Now()))
	if err != nil {
		return err
	}

	var chain []string
	switch k := id.Kind.(type) {
	case Secondary:
		cert, err := b.api.CertKey(ctx, cc, id.Address, kp.Public())
		if err != nil {
			return fmt.Errorf("certify %s: %w", id.Address, err)
		}
		chain = []string{cert}
	case Primary:
		if b.provisioner == nil {
			return fmt.Errorf("%w: %s", ErrNoProvisioner, id.Address)
		}
		chain, err = b.provisioner.Provision(ctx, id.Address, k.DiscoveryURL, kp.Public())
		if err != nil {
			return fmt.Errorf("provision %s: %w", id.Address, err)
		}
	default:
		return fmt.Errorf("%w: unknown identity kind %T", common.ErrorValidation, k)
	}

	return b.cache.Store(ctx, id.Address, kp, chain)
}

func (b *AssertionBuilder) sign(id *Identity, audience string, cc *client.ClientContext) (string, error) {
	expires := cc.ServerNow(b.clock.Now()).Add(common.AssertionValidity)
	assertion, err := jwcrypto.SignAssertion(id.Key.Private, audience, expires)
	if err != nil {
		return "", err
	}
	return jwcrypto.Bundle{Certificates: id.Chain, Assertion: assertion}.String(), nil
}
