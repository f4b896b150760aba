package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/clock"
	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/dmitrijs2005/idkeeper/internal/server/auth"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/repomanager"
)

const csrfTokenBytes = 16

// SessionManager operates on the per-connection auth.Session: CSRF
// tokens, password authentication and lazy authentication expiry.
type SessionManager struct {
	repos        repomanager.RepositoryManager
	hasher       PasswordHasher
	clock        clock.Clock
	authDuration time.Duration
	logger       logging.Logger

	wg sync.WaitGroup
}

func NewSessionManager(repos repomanager.RepositoryManager, hasher PasswordHasher, clk clock.Clock, authDuration time.Duration, logger logging.Logger) *SessionManager {
	return &SessionManager{
		repos:        repos,
		hasher:       hasher,
		clock:        clk,
		authDuration: authDuration,
		logger:       logger.With("module", "sessions"),
	}
}

// GetOrCreateCSRF returns the session's CSRF token, generating it on
// first use. The token then lives as long as the session.
func (m *SessionManager) GetOrCreateCSRF(s *auth.Session) (string, error) {
	if s.CSRF == "" {
		tok, err := common.MakeRandHexString(csrfTokenBytes)
		if err != nil {
			return "", fmt.Errorf("%w: %v", common.ErrorInternal, err)
		}
		s.CSRF = tok
	}
	return s.CSRF, nil
}

// CheckCSRF fails with common.ErrorForbidden unless token matches.
func (m *SessionManager) CheckCSRF(s *auth.Session, token string) error {
	if s.CSRF == "" || subtle.ConstantTimeCompare([]byte(s.CSRF), []byte(token)) != 1 {
		return common.ErrorForbidden
	}
	return nil
}

// Authenticate checks password for email. Wrong credentials and unknown
// addresses return false without an error; errors mean the check itself
// could not run. When the stored hash uses an outdated work factor a
// rehash is started in the background.
func (m *SessionManager) Authenticate(ctx context.Context, s *auth.Session, email, password string) (bool, error) {
	if CheckPasswordLength(password) != nil {
		return false, nil
	}

	e, err := m.repos.Emails().Get(ctx, email)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	acc, err := m.repos.Accounts().Get(ctx, e.AccountID)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	ok, err := m.hasher.Compare(ctx, acc.PasswordHash, password)
	if err != nil || !ok {
		return false, err
	}

	m.SetAuthenticated(s, email, acc.ID)

	if m.hasher.NeedsRehash(acc.PasswordHash) {
		m.rehash(acc.ID, acc.PasswordHash, password)
	}
	return true, nil
}

func (m *SessionManager) rehash(accountID, oldHash, password string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx := context.Background()

		newHash, err := m.hasher.Hash(ctx, password)
		if err != nil {
			m.logger.Error(ctx, "password rehash failed", "account", accountID, "error", err)
			return
		}
		updated, err := m.repos.Accounts().ReplacePasswordHash(ctx, accountID, oldHash, newHash)
		if err != nil {
			m.logger.Error(ctx, "storing rehashed password failed", "account", accountID, "error", err)
			return
		}
		if updated {
			m.logger.Info(ctx, "password rehashed", "account", accountID)
		}
	}()
}

// SetAuthenticated marks the session as authenticated as email now.
func (m *SessionManager) SetAuthenticated(s *auth.Session, email, accountID string) {
	s.Principal = email
	s.AccountID = accountID
	s.AuthAt = m.clock.Now().UnixMilli()
}

// CheckAuthenticated returns the principal while the authentication is
// younger than the configured duration. An expired authentication is
// cleared from the session and reported as "".
func (m *SessionManager) CheckAuthenticated(s *auth.Session) string {
	if s.Principal == "" {
		return ""
	}
	age := m.clock.Now().Sub(time.UnixMilli(s.AuthAt))
	if s.AuthAt <= 0 || age < 0 || age >= m.authDuration {
		m.Logout(s)
		return ""
	}
	return s.Principal
}

// Logout clears authentication and keeps the CSRF token.
func (m *SessionManager) Logout(s *auth.Session) {
	s.Principal = ""
	s.AccountID = ""
	s.AuthAt = 0
}

// Wait blocks until background rehashes finish.
func (m *SessionManager) Wait() {
	m.wg.Wait()
}
