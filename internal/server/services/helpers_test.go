package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/clock"
	"github.com/dmitrijs2005/idkeeper/internal/keys"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/dmitrijs2005/idkeeper/internal/server/auth"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// countingHasher records every hash computation.
type countingHasher struct {
	PasswordHasher
	hashes   atomic.Int32
	compares atomic.Int32
}

func (h *countingHasher) Hash(ctx context.Context, password string) (string, error) {
	h.hashes.Add(1)
	return h.PasswordHasher.Hash(ctx, password)
}

func (h *countingHasher) Compare(ctx context.Context, hash, password string) (bool, error) {
	h.compares.Add(1)
	return h.PasswordHasher.Compare(ctx, hash, password)
}

// recordingNotifier keeps delivered secrets.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.VerificationSecret
}

func (n *recordingNotifier) Notify(_ context.Context, s *models.VerificationSecret) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, *s)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type testEnv struct {
	clock    *clock.FakeClock
	repos    repomanager.RepositoryManager
	hasher   *countingHasher
	notifier *recordingNotifier
	secrets  *SecretManager
	sessions *SessionManager
	accounts *AccountService
	ca       *CertificateAuthority
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, repomanager.NewInMemoryRepositoryManager(nil), bcrypt.MinCost)
}

func newTestEnvWith(t *testing.T, repos repomanager.RepositoryManager, cost int) *testEnv {
	t.Helper()

	clk := clock.Fake(testNow)
	log := logging.Discard()
	hasher := &countingHasher{PasswordHasher: NewBcryptHasher(cost, 4, time.Second)}
	notifier := &recordingNotifier{}

	secrets := NewSecretManager(repos, notifier, NewThrottle(time.Minute, clk), clk, time.Hour, log)
	sessions := NewSessionManager(repos, hasher, clk, 28*24*time.Hour, log)
	accounts := NewAccountService(repos, secrets, sessions, hasher, log)

	key, err := keys.Generate(keys.RS256, testNow)
	require.NoError(t, err)
	ca := NewCertificateAuthority(repos, sessions, key, "idkeeper.test", 24*time.Hour, clk, log)

	t.Cleanup(func() {
		secrets.Wait()
		sessions.Wait()
	})

	return &testEnv{
		clock:    clk,
		repos:    repos,
		hasher:   hasher,
		notifier: notifier,
		secrets:  secrets,
		sessions: sessions,
		accounts: accounts,
		ca:       ca,
	}
}

// createAccount stages and completes an account for email.
func (e *testEnv) createAccount(t *testing.T, email, password string) *auth.Session {
	t.Helper()
	ctx := context.Background()

	tok, err := e.secrets.Stage(ctx, models.PurposeCreateAccount, email, "https://rp.example", "")
	require.NoError(t, err)

	s := &auth.Session{}
	_, err = e.accounts.CompleteUserCreation(ctx, s, tok, password)
	require.NoError(t, err)
	return s
}
