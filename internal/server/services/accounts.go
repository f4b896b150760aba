package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/dmitrijs2005/idkeeper/internal/server/auth"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/repomanager"
)

// AccountService completes staged verifications and manages the
// addresses of an authenticated account.
type AccountService struct {
	repos    repomanager.RepositoryManager
	secrets  *SecretManager
	sessions *SessionManager
	hasher   PasswordHasher
	logger   logging.Logger
}

func NewAccountService(repos repomanager.RepositoryManager, secrets *SecretManager, sessions *SessionManager, hasher PasswordHasher, logger logging.Logger) *AccountService {
	return &AccountService{
		repos:    repos,
		secrets:  secrets,
		sessions: sessions,
		hasher:   hasher,
		logger:   logger.With("module", "accounts"),
	}
}

// CompleteUserCreation consumes a create-account token, creates the
// account with password and authenticates the session. The password
// length is checked before anything is hashed or consumed.
func (a *AccountService) CompleteUserCreation(ctx context.Context, s *auth.Session, token, password string) (string, error) {
	if err := CheckPasswordLength(password); err != nil {
		return "", err
	}
	if _, err := a.expectPurpose(ctx, token, models.PurposeCreateAccount); err != nil {
		return "", err
	}

	hash, err := a.hasher.Hash(ctx, password)
	if err != nil {
		return "", err
	}

	var email, accountID string
	err = a.repos.WithTx(ctx, func(ctx context.Context, repos repomanager.Repositories) error {
		secret, err := a.secrets.ConsumeTx(ctx, repos, token)
		if err != nil {
			return err
		}
		if secret.Purpose != models.PurposeCreateAccount {
			return common.ErrorNotFound
		}

		acc, err := repos.Accounts().Create(ctx, hash)
		if err != nil {
			return err
		}
		if err := repos.Emails().Add(ctx, &models.Email{Address: secret.Email, AccountID: acc.ID, Verified: true}); err != nil {
			return err
		}
		email, accountID = secret.Email, acc.ID
		return nil
	})
	if err != nil {
		return "", err
	}

	a.sessions.SetAuthenticated(s, email, accountID)
	s.PendingCreation = ""
	a.logger.Info(ctx, "account created", "email", email, "account", accountID)
	return email, nil
}

// CompleteEmailAddition consumes an add-email token and attaches the
// address to the account that staged it.
func (a *AccountService) CompleteEmailAddition(ctx context.Context, s *auth.Session, token string) (string, error) {
	var email string
	err := a.repos.WithTx(ctx, func(ctx context.Context, repos repomanager.Repositories) error {
		secret, err := a.secrets.ConsumeTx(ctx, repos, token)
		if err != nil {
			return err
		}
		if secret.Purpose != models.PurposeAddEmail || secret.AccountID == "" {
			return common.ErrorNotFound
		}

		existing, err := repos.Emails().Get(ctx, secret.Email)
		switch {
		case err == nil && existing.AccountID == secret.AccountID:
			email = secret.Email
			return nil
		case err == nil:
			return common.ErrorDuplicateAddress
		case !errors.Is(err, common.ErrorNotFound):
			return err
		}

		if err := repos.Emails().Add(ctx, &models.Email{Address: secret.Email, AccountID: secret.AccountID, Verified: true}); err != nil {
			return err
		}
		email = secret.Email
		return nil
	})
	if err != nil {
		return "", err
	}

	s.PendingAddition = ""
	a.logger.Info(ctx, "email added", "email", email)
	return email, nil
}

// CompleteReset consumes a reset-password token, replaces the account's
// password and authenticates the session.
func (a *AccountService) CompleteReset(ctx context.Context, s *auth.Session, token, password string) (string, error) {
	if err := CheckPasswordLength(password); err != nil {
		return "", err
	}
	if _, err := a.expectPurpose(ctx, token, models.PurposeResetPassword); err != nil {
		return "", err
	}

	hash, err := a.hasher.Hash(ctx, password)
	if err != nil {
		return "", err
	}

	var email, accountID string
	err = a.repos.WithTx(ctx, func(ctx context.Context, repos repomanager.Repositories) error {
		secret, err := a.secrets.ConsumeTx(ctx, repos, token)
		if err != nil {
			return err
		}
		if secret.Purpose != models.PurposeResetPassword {
			return common.ErrorNotFound
		}
		if err := repos.Accounts().SetPasswordHash(ctx, secret.AccountID, hash); err != nil {
			return err
		}
		email, accountID = secret.Email, secret.AccountID
		return nil
	})
	if err != nil {
		return "", err
	}

	a.sessions.SetAuthenticated(s, email, accountID)
	return email, nil
}

// expectPurpose resolves token before any expensive work is done for it.
func (a *AccountService) expectPurpose(ctx context.Context, token string, purpose models.Purpose) (*models.VerificationSecret, error) {
	secret, err := a.secrets.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if secret.Purpose != purpose {
		return nil, common.ErrorNotFound
	}
	return secret, nil
}

// EmailInfo describes one address of an account.
type EmailInfo struct {
	Verified bool   `json:"verified"`
	Type     string `json:"type"`
}

// ListEmails returns the authenticated account's addresses.
func (a *AccountService) ListEmails(ctx context.Context, s *auth.Session) (map[string]EmailInfo, error) {
	if a.sessions.CheckAuthenticated(s) == "" {
		return nil, common.ErrorUnauthorized
	}
	list, err := a.repos.Emails().ListByAccount(ctx, s.AccountID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]EmailInfo, len(list))
	for _, e := range list {
		out[e.Address] = EmailInfo{Verified: e.Verified, Type: string(KindSecondary)}
	}
	return out, nil
}

// RemoveEmail detaches an address from the authenticated account. Removing
// the last address cancels the account.
func (a *AccountService) RemoveEmail(ctx context.Context, s *auth.Session, email string) error {
	if a.sessions.CheckAuthenticated(s) == "" {
		return common.ErrorUnauthorized
	}

	var cancelled bool
	err := a.repos.WithTx(ctx, func(ctx context.Context, repos repomanager.Repositories) error {
		e, err := repos.Emails().Get(ctx, email)
		if err != nil {
			return err
		}
		if e.AccountID != s.AccountID {
			return common.ErrorSameAccount
		}
		if err := repos.Emails().Delete(ctx, email); err != nil {
			return err
		}

		rest, err := repos.Emails().ListByAccount(ctx, s.AccountID)
		if err != nil {
			return err
		}
		if len(rest) == 0 {
			cancelled = true
			return repos.Accounts().Delete(ctx, s.AccountID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if cancelled || email == s.Principal {
		a.sessions.Logout(s)
	}
	return nil
}

// CancelAccount deletes the authenticated account with all its addresses
// and logs the session out.
func (a *AccountService) CancelAccount(ctx context.Context, s *auth.Session) error {
	if a.sessions.CheckAuthenticated(s) == "" {
		return common.ErrorUnauthorized
	}
	if err := a.repos.Accounts().Delete(ctx, s.AccountID); err != nil {
		return fmt.Errorf("cancel account: %w", err)
	}
	a.logger.Info(ctx, "account cancelled", "account", s.AccountID)
	a.sessions.Logout(s)
	return nil
}

// HaveEmail reports whether the address belongs to any account.
func (a *AccountService) HaveEmail(ctx context.Context, email string) (bool, error) {
	_, err := a.repos.Emails().Get(ctx, email)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, common.ErrorNotFound):
		return false, nil
	default:
		return false, err
	}
}

// EmailForToken resolves a live token to its address without consuming it.
func (a *AccountService) EmailForToken(ctx context.Context, token string) (string, error) {
	secret, err := a.secrets.Resolve(ctx, token)
	if err != nil {
		return "", err
	}
	return secret.Email, nil
}
