package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/idkeeper/internal/client/client"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
)

// IdentityService runs the client's multi-step flows: staging, polling,
// completion, login and certification.
type IdentityService struct {
	api       client.Client
	session   *Session
	vault     *Vault
	cache     *CredentialCache
	markers   *StagingMarkers
	builder   *AssertionBuilder
	creation  *Poller
	additions *Poller
	logger    logging.Logger
}

// Deps bundles what IdentityService is built from.
type Deps struct {
	API       client.Client
	Session   *Session
	Vault     *Vault
	Cache     *CredentialCache
	Markers   *StagingMarkers
	Builder   *AssertionBuilder
	Creation  *Poller
	Additions *Poller
}

func NewIdentityService(d Deps, logger logging.Logger) *IdentityService {
	return &IdentityService{
		api:       d.API,
		session:   d.Session,
		vault:     d.Vault,
		cache:     d.Cache,
		markers:   d.Markers,
		builder:   d.Builder,
		creation:  d.Creation,
		additions: d.Additions,
		logger:    logger.With("module", "identity"),
	}
}

// Register stages a new account for email and starts polling its
// creation status.
func (s *IdentityService) Register(ctx context.Context, email, site string, cb PollCallbacks) error {
	cc, err := s.session.Context(ctx)
	if err != nil {
		return err
	}
	if err := s.api.StageUser(ctx, cc, email, site); err != nil {
		return err
	}
	if err := s.markers.MarkStaged(ctx, email, site); err != nil {
		return err
	}
	s.creation.Start(ctx, email, cb)
	return nil
}

// CompleteRegistration finishes account creation with a verification
// token and the new password, leaving the session authenticated.
func (s *IdentityService) CompleteRegistration(ctx context.Context, token string, password []byte) (string, error) {
	cc, err := s.session.Context(ctx)
	if err != nil {
		return "", err
	}
	email, err := s.api.EmailForToken(ctx, token)
	if err != nil {
		return "", err
	}
	if err := s.api.CompleteUserCreation(ctx, cc, token, string(password)); err != nil {
		return "", err
	}
	if err := s.openVault(ctx, password); err != nil {
		return "", err
	}
	if err := s.cache.Put(ctx, email, Secondary{Verified: true}); err != nil {
		return "", err
	}
	return email, s.markers.ClearStaged(ctx, email)
}

// Login authenticates email and unlocks the local vault with the same
// password.
func (s *IdentityService) Login(ctx context.Context, email string, password []byte) error {
	cc, err := s.session.Context(ctx)
	if err != nil {
		return err
	}
	ok, err := s.api.Authenticate(ctx, cc, email, string(password))
	if err != nil {
		return err
	}
	if !ok {
		return client.ErrUnauthorized
	}
	if err := s.openVault(ctx, password); err != nil {
		return err
	}
	_, err = s.SyncEmails(ctx)
	return err
}

// openVault unlocks the vault. If the password changed since the vault
// was created, the vault is recreated and every cached key is dropped.
func (s *IdentityService) openVault(ctx context.Context, password []byte) error {
	err := s.vault.Unlock(ctx, password)
	if !errors.Is(err, client.ErrUnauthorized) && !errors.Is(err, client.ErrLocalDataNotAvailable) {
		return err
	}

	s.logger.Info(ctx, "recreating local vault")
	if err := s.vault.Reset(ctx); err != nil {
		return err
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		return err
	}
	return s.vault.Unlock(ctx, password)
}

// SyncEmails records the account's addresses in the credential cache.
func (s *IdentityService) SyncEmails(ctx context.Context) (map[string]client.EmailInfo, error) {
	emails, err := s.api.ListEmails(ctx)
	if err != nil {
		return nil, err
	}
	for address, info := range emails {
		if err := s.cache.Put(ctx, address, Secondary{Verified: info.Verified}); err != nil {
			return nil, err
		}
	}
	return emails, nil
}

// AddEmail stages address for the authenticated account and starts
// polling its addition status.
func (s *IdentityService) AddEmail(ctx context.Context, address, site string, cb PollCallbacks) error {
	cc, err := s.session.Context(ctx)
	if err != nil {
		return err
	}
	if err := s.api.StageEmail(ctx, cc, address, site); err != nil {
		return err
	}
	if err := s.markers.MarkStaged(ctx, address, site); err != nil {
		return err
	}
	s.additions.Start(ctx, address, cb)
	return nil
}

// CompleteEmailAddition attaches the address a token was issued for.
func (s *IdentityService) CompleteEmailAddition(ctx context.Context, token string) (string, error) {
	cc, err := s.session.Context(ctx)
	if err != nil {
		return "", err
	}
	email, err := s.api.EmailForToken(ctx, token)
	if err != nil {
		return "", err
	}
	if err := s.api.CompleteEmailAddition(ctx, cc, token); err != nil {
		return "", err
	}
	if err := s.cache.Put(ctx, email, Secondary{Verified: true}); err != nil {
		return "", err
	}
	return email, s.markers.ClearStaged(ctx, email)
}

// Track looks address up and caches it as primary or secondary.
func (s *IdentityService) Track(ctx context.Context, address string) (Kind, error) {
	info, err := s.api.AddressInfo(ctx, address)
	if err != nil {
		return nil, err
	}

	var kind Kind
	switch info.Type {
	case "primary":
		kind = Primary{DiscoveryURL: info.Discovery}
	case "secondary":
		kind = Secondary{Verified: info.Known}
	default:
		return nil, fmt.Errorf("unexpected address type %q", info.Type)
	}
	return kind, s.cache.Put(ctx, address, kind)
}

// Certify replaces the certificate of address.
func (s *IdentityService) Certify(ctx context.Context, address string) error {
	return s.builder.Certify(ctx, address)
}

// Assert returns an encoded assertion bundle for address and audience.
func (s *IdentityService) Assert(ctx context.Context, address, audience string) (string, error) {
	return s.builder.GetAssertion(ctx, address, audience)
}

// RemoveEmail detaches address from the account and forgets it locally.
func (s *IdentityService) RemoveEmail(ctx context.Context, address string) error {
	cc, err := s.session.Context(ctx)
	if err != nil {
		return err
	}
	if err := s.api.RemoveEmail(ctx, cc, address); err != nil {
		return err
	}
	return s.cache.Remove(ctx, address)
}

// Logout ends the server session, locks the vault and cancels polls.
// Cached identities stay for the next login.
func (s *IdentityService) Logout(ctx context.Context) error {
	cc, err := s.session.Context(ctx)
	if err == nil {
		err = s.api.Logout(ctx, cc)
	}
	s.session.Clear()
	s.vault.Lock()
	s.creation.CancelAll()
	s.additions.CancelAll()
	return err
}

// Addresses lists locally cached addresses.
func (s *IdentityService) Addresses(ctx context.Context) ([]string, error) {
	return s.cache.Addresses(ctx)
}

// Authenticated reports whether the server session is authenticated.
func (s *IdentityService) Authenticated(ctx context.Context) bool {
	cc, err := s.session.Context(ctx)
	return err == nil && cc.Authenticated && s.vault.Unlocked()
}
