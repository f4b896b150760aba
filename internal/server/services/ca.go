package services

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/clock"
	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/jwcrypto"
	"github.com/dmitrijs2005/idkeeper/internal/keys"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/dmitrijs2005/idkeeper/internal/server/auth"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/repomanager"
)

// CertificateAuthority signs certificates binding an account's addresses
// to client-supplied public keys.
type CertificateAuthority struct {
	repos    repomanager.RepositoryManager
	sessions *SessionManager
	key      *keys.KeyPair
	issuer   string
	validity time.Duration
	clock    clock.Clock
	logger   logging.Logger
}

func NewCertificateAuthority(repos repomanager.RepositoryManager, sessions *SessionManager, key *keys.KeyPair, issuer string, validity time.Duration, clk clock.Clock, logger logging.Logger) *CertificateAuthority {
	return &CertificateAuthority{
		repos:    repos,
		sessions: sessions,
		key:      key,
		issuer:   issuer,
		validity: validity,
		clock:    clk,
		logger:   logger.With("module", "ca"),
	}
}

// Issuer is the hostname certificates are issued under.
func (ca *CertificateAuthority) Issuer() string { return ca.issuer }

// Key is the signing keypair.
func (ca *CertificateAuthority) Key() *keys.KeyPair { return ca.key }

// IssueCertificate certifies pub for email. The session must be
// authenticated and email must belong to the same account as the
// session's principal.
func (ca *CertificateAuthority) IssueCertificate(ctx context.Context, s *auth.Session, email string, pub crypto.PublicKey) (string, error) {
	principal := ca.sessions.CheckAuthenticated(s)
	if principal == "" {
		return "", common.ErrorUnauthorized
	}
	if pub == nil {
		return "", fmt.Errorf("%w: missing public key", common.ErrorValidation)
	}

	owner, err := ca.repos.Emails().Get(ctx, email)
	if errors.Is(err, common.ErrorNotFound) {
		return "", common.ErrorSameAccount
	}
	if err != nil {
		return "", err
	}
	if owner.AccountID != s.AccountID {
		return "", common.ErrorSameAccount
	}

	now := ca.clock.Now()
	cert, err := jwcrypto.SignCertificate(ca.key.Private, ca.issuer, email, pub, now, now.Add(ca.validity))
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	ca.logger.Info(ctx, "certificate issued", "email", email, "expires", now.Add(ca.validity))
	return cert, nil
}
