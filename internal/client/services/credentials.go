package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/client/repositories/kv"
	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/jwcrypto"
	"github.com/dmitrijs2005/idkeeper/internal/keys"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
)

const identityPrefix = "identity:"

// Kind says who vouches for a cached address. It is either Secondary or
// Primary.
type Kind interface {
	kindName() string
}

// Secondary addresses are certified by the issuing server.
type Secondary struct {
	Verified bool
}

// Primary addresses are certified by the identity provider that answers
// discovery for their domain.
type Primary struct {
	DiscoveryURL string
}

func (Secondary) kindName() string { return "secondary" }
func (Primary) kindName() string   { return "primary" }

// Staleness tells why a cached identity has no usable certificate.
type Staleness string

const (
	Fresh Staleness = ""
	// StaleMissing: no key or certificate was ever stored.
	StaleMissing Staleness = "missing"
	// StaleExpired: the certificate expires within the safety margin.
	StaleExpired Staleness = "expired"
	// StaleRotated: the certificate predates the issuer's current key.
	StaleRotated Staleness = "rotated"
	// StaleUnreadable: the sealed key cannot be opened with the vault key.
	StaleUnreadable Staleness = "unreadable"
)

// Identity is one cached address. Key and Chain are set together; an
// identity without them is a placeholder.
type Identity struct {
	Address string
	Kind    Kind
	Key     *keys.KeyPair
	// Chain is the certificate chain, root first.
	Chain     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
	// Stale is set by Get when the identity has no usable certificate.
	Stale Staleness
}

// Usable reports whether the identity can sign assertions.
func (i *Identity) Usable() bool {
	return i.Key != nil && len(i.Chain) > 0
}

type storedIdentity struct {
	Address   string   `json:"address"`
	Type      string   `json:"type"`
	Verified  bool     `json:"verified,omitempty"`
	Discovery string   `json:"discovery,omitempty"`
	SealedKey []byte   `json:"sealed_key,omitempty"`
	Chain     []string `json:"chain,omitempty"`
}

func (s *storedIdentity) kind() (Kind, error) {
	switch s.Type {
	case "secondary":
		return Secondary{Verified: s.Verified}, nil
	case "primary":
		return Primary{DiscoveryURL: s.Discovery}, nil
	default:
		return nil, fmt.Errorf("%w: unknown identity type %q", common.ErrorValidation, s.Type)
	}
}

func (s *storedIdentity) setKind(k Kind) {
	s.Type = k.kindName()
	switch k := k.(type) {
	case Secondary:
		s.Verified, s.Discovery = k.Verified, ""
	case Primary:
		s.Verified, s.Discovery = false, k.DiscoveryURL
	}
}

// CredentialCache keeps per-address keys and certificates in the local
// store. Validity is checked when an identity is read; nothing sweeps the
// cache in the background.
type CredentialCache struct {
	repo   kv.Repository
	vault  *Vault
	margin time.Duration
	logger logging.Logger
}

// NewCredentialCache builds a cache that treats certificates expiring
// within margin as already expired.
func NewCredentialCache(repo kv.Repository, vault *Vault, margin time.Duration, logger logging.Logger) *CredentialCache {
	return &CredentialCache{repo: repo, vault: vault, margin: margin, logger: logger.With("module", "credentials")}
}

func (c *CredentialCache) load(ctx context.Context, address string) (*storedIdentity, error) {
	data, err := c.repo.Get(ctx, identityPrefix+address)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: no cached identity for %s", common.ErrorNotFound, address)
	}
	var s storedIdentity
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode identity %s: %w", address, err)
	}
	return &s, nil
}

func (c *CredentialCache) save(ctx context.Context, s *storedIdentity) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.repo.Set(ctx, identityPrefix+s.Address, data)
}

// Put records address with the given kind. An existing identity keeps its
// key and certificate unless its kind changes.
func (c *CredentialCache) Put(ctx context.Context, address string, kind Kind) error {
	s, err := c.load(ctx, address)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		s = &storedIdentity{Address: address}
	case err != nil:
		return err
	}

	if s.Type != "" && s.Type != kind.kindName() {
		s.SealedKey, s.Chain = nil, nil
	}
	s.setKind(kind)
	return c.save(ctx, s)
}

// Get returns the identity for address as of now, the server's time.
// A certificate that expires within the margin, or that was issued before
// domainKeyCreated by the issuing server, is dropped and the identity is
// kept as a placeholder.
func (c *CredentialCache) Get(ctx context.Context, address string, now, domainKeyCreated time.Time) (*Identity, error) {
	s, err := c.load(ctx, address)
	if err != nil {
		return nil, err
	}
	kind, err := s.kind()
	if err != nil {
		return nil, err
	}

	id := &Identity{Address: address, Kind: kind, Stale: StaleMissing}
	if s.SealedKey == nil || len(s.Chain) == 0 {
		return id, nil
	}

	leaf, err := jwcrypto.ParseCertificate(s.Chain[len(s.Chain)-1])
	if err != nil {
		id.Stale = StaleUnreadable
		return id, c.invalidate(ctx, s, StaleUnreadable, err)
	}

	if stale := c.staleness(kind, leaf, now, domainKeyCreated); stale != Fresh {
		id.Stale = stale
		return id, c.invalidate(ctx, s, stale, nil)
	}

	kp, err := c.vault.OpenKey(s.SealedKey)
	if errors.Is(err, ErrVaultLocked) {
		return nil, err
	}
	if err != nil {
		id.Stale = StaleUnreadable
		return id, c.invalidate(ctx, s, StaleUnreadable, err)
	}

	id.Key, id.Chain = kp, s.Chain
	id.IssuedAt, id.ExpiresAt = leaf.IssuedAt, leaf.ExpiresAt
	id.Stale = Fresh
	return id, nil
}

func (c *CredentialCache) staleness(kind Kind, leaf *jwcrypto.Certificate, now, domainKeyCreated time.Time) Staleness {
	if leaf.ExpiresAt.Sub(now) < c.margin {
		return StaleExpired
	}
	switch kind.(type) {
	case Secondary:
		if leaf.IssuedAt.Before(domainKeyCreated) {
			return StaleRotated
		}
	case Primary:
		// The identity provider's keys are not tracked here.
	}
	return Fresh
}

func (c *CredentialCache) invalidate(ctx context.Context, s *storedIdentity, why Staleness, cause error) error {
	c.logger.Debug(ctx, "cached certificate dropped", "address", s.Address, "reason", string(why), "error", cause)
	s.SealedKey, s.Chain = nil, nil
	return c.save(ctx, s)
}

// Store saves a fresh key and certificate chain for a known address.
func (c *CredentialCache) Store(ctx context.Context, address string, kp *keys.KeyPair, chain []string) error {
	if len(chain) == 0 {
		return fmt.Errorf("%w: empty certificate chain", common.ErrorValidation)
	}
	s, err := c.load(ctx, address)
	if err != nil {
		return err
	}
	sealed, err := c.vault.SealKey(kp)
	if err != nil {
		return err
	}
	s.SealedKey, s.Chain = sealed, chain
	return c.save(ctx, s)
}

// Invalidate drops the key and certificate of address, keeping the record.
func (c *CredentialCache) Invalidate(ctx context.Context, address string) error {
	s, err := c.load(ctx, address)
	if err != nil {
		return err
	}
	return c.invalidate(ctx, s, StaleMissing, nil)
}

// InvalidateAll drops every cached key, e.g. after the vault was reset.
func (c *CredentialCache) InvalidateAll(ctx context.Context) error {
	addresses, err := c.Addresses(ctx)
	if err != nil {
		return err
	}
	for _, a := range addresses {
		if err := c.Invalidate(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (c *CredentialCache) Remove(ctx context.Context, address string) error {
	return c.repo.Delete(ctx, identityPrefix+address)
}

// Addresses lists cached addresses in order.
func (c *CredentialCache) Addresses(ctx context.Context) ([]string, error) {
	entries, err := c.repo.List(ctx, identityPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for k := range entries {
		out = append(out, strings.TrimPrefix(k, identityPrefix))
	}
	sort.Strings(out)
	return out, nil
}

// Clear removes every cached identity.
func (c *CredentialCache) Clear(ctx context.Context) error {
	addresses, err := c.Addresses(ctx)
	if err != nil {
		return err
	}
	for _, a := range addresses {
		if err := c.Remove(ctx, a); err != nil {
			return err
		}
	}
	return nil
}
