package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sync"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/clock"
	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/repomanager"
)

// Status is the outcome of a registration or addition status query.
type Status string

const (
	StatusComplete       Status = "complete"
	StatusPending        Status = "pending"
	StatusMustAuth       Status = "mustAuth"
	StatusNoRegistration Status = "noRegistration"
)

// secretTokenBytes gives 48 hex characters of entropy.
const secretTokenBytes = 24

// SecretManager issues, resolves and consumes one-time verification secrets.
type SecretManager struct {
	repos    repomanager.RepositoryManager
	notifier Notifier
	throttle *Throttle
	clock    clock.Clock
	ttl      time.Duration
	logger   logging.Logger

	wg sync.WaitGroup
}

func NewSecretManager(repos repomanager.RepositoryManager, notifier Notifier, throttle *Throttle, clk clock.Clock, ttl time.Duration, logger logging.Logger) *SecretManager {
	return &SecretManager{
		repos:    repos,
		notifier: notifier,
		throttle: throttle,
		clock:    clk,
		ttl:      ttl,
		logger:   logger.With("module", "secrets"),
	}
}

// ValidateAddress checks that email is a bare address with a domain.
func ValidateAddress(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return common.ErrorMalformedAddress
	}
	return nil
}

// Stage creates a verification secret for email and hands it to the
// notifier. accountID names the staging account for add-email; it is
// ignored for the other purposes. Any earlier secret for the same email
// and purpose is replaced. Each address may be staged at most once per
// throttle interval, whatever the purpose.
func (m *SecretManager) Stage(ctx context.Context, purpose models.Purpose, email, site, accountID string) (string, error) {
	if _, err := models.ParsePurpose(string(purpose)); err != nil {
		return "", err
	}
	if err := ValidateAddress(email); err != nil {
		return "", err
	}
	token, err := common.MakeRandHexString(secretTokenBytes)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	secret := &models.VerificationSecret{
		Token:    token,
		Purpose:  purpose,
		Email:    email,
		Site:     site,
		IssuedAt: m.clock.Now(),
	}

	err = m.repos.WithTx(ctx, func(ctx context.Context, repos repomanager.Repositories) error {
		existing, err := repos.Emails().Get(ctx, email)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}

		switch purpose {
		case models.PurposeCreateAccount:
			if existing != nil {
				return common.ErrorDuplicateAddress
			}
		case models.PurposeAddEmail:
			if accountID == "" {
				return common.ErrorUnauthorized
			}
			if existing != nil && existing.AccountID != accountID {
				return common.ErrorDuplicateAddress
			}
			secret.AccountID = accountID
		case models.PurposeResetPassword:
			if existing == nil {
				return common.ErrorNotFound
			}
			secret.AccountID = existing.AccountID
		}

		if m.throttle != nil && !m.throttle.Allow(email) {
			return common.ErrorThrottled
		}
		if err := repos.Secrets().DeleteFor(ctx, email, purpose); err != nil {
			return err
		}
		return repos.Secrets().Insert(ctx, secret)
	})
	if err != nil {
		return "", err
	}

	m.notify(secret)
	return token, nil
}

// notify delivers in the background; delivery failures are only logged.
func (m *SecretManager) notify(secret *models.VerificationSecret) {
	if m.notifier == nil {
		return
	}
	s := *secret
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx := context.Background()
		if err := m.notifier.Notify(ctx, &s); err != nil {
			m.logger.Error(ctx, "verification delivery failed", "email", s.Email, "purpose", string(s.Purpose), "error", err)
		}
	}()
}

// Resolve looks a token up without consuming it.
func (m *SecretManager) Resolve(ctx context.Context, token string) (*models.VerificationSecret, error) {
	if token == "" {
		return nil, common.ErrorNotFound
	}
	s, err := m.repos.Secrets().Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if s.Expired(m.clock.Now(), m.ttl) {
		return nil, common.ErrorNotFound
	}
	return s, nil
}

// Consume atomically takes the secret. Expired secrets are removed and
// reported as not found.
func (m *SecretManager) Consume(ctx context.Context, token string) (*models.VerificationSecret, error) {
	return m.consume(ctx, m.repos, token)
}

// ConsumeTx is Consume bound to the caller's transaction.
func (m *SecretManager) ConsumeTx(ctx context.Context, repos repomanager.Repositories, token string) (*models.VerificationSecret, error) {
	return m.consume(ctx, repos, token)
}

func (m *SecretManager) consume(ctx context.Context, repos repomanager.Repositories, token string) (*models.VerificationSecret, error) {
	if token == "" {
		return nil, common.ErrorNotFound
	}
	s, err := repos.Secrets().Take(ctx, token)
	if err != nil {
		return nil, err
	}
	if s.Expired(m.clock.Now(), m.ttl) {
		return nil, common.ErrorNotFound
	}
	return s, nil
}

// Status combines the session's authentication, a live secret and the
// address's existence into one state:
// complete > pending > mustAuth (address known) > noRegistration.
//
// For add-email, complete means the address already belongs to the
// principal's account.
func (m *SecretManager) Status(ctx context.Context, purpose models.Purpose, email, principal, accountID string) (Status, error) {
	existing, err := m.repos.Emails().Get(ctx, email)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return "", err
	}

	switch {
	case principal != "" && principal == email:
		return StatusComplete, nil
	case purpose == models.PurposeAddEmail && existing != nil && accountID != "" && existing.AccountID == accountID:
		return StatusComplete, nil
	}

	s, err := m.repos.Secrets().FindByEmail(ctx, email, purpose)
	switch {
	case err == nil && !s.Expired(m.clock.Now(), m.ttl):
		return StatusPending, nil
	case err != nil && !errors.Is(err, common.ErrorNotFound):
		return "", err
	}

	if existing != nil {
		return StatusMustAuth, nil
	}
	return StatusNoRegistration, nil
}

// Sweep deletes secrets older than the TTL.
func (m *SecretManager) Sweep(ctx context.Context) (int64, error) {
	if m.ttl <= 0 {
		return 0, nil
	}
	return m.repos.Secrets().DeleteIssuedBefore(ctx, m.clock.Now().Add(-m.ttl))
}

// Wait blocks until background deliveries finish.
func (m *SecretManager) Wait() {
	m.wg.Wait()
}
