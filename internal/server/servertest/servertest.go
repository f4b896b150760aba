// Package servertest runs an in-process issuing server for client tests.
package servertest

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/clock"
	"github.com/dmitrijs2005/idkeeper/internal/keys"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/idkeeper/internal/server/services"
	"github.com/dmitrijs2005/idkeeper/internal/server/wsapi"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// Issuer is the hostname certificates are issued under.
const Issuer = "idkeeper.test"

// Mailbox captures verification secrets instead of delivering them.
type Mailbox struct {
	mu      sync.Mutex
	secrets map[string]models.VerificationSecret
}

func (m *Mailbox) Notify(_ context.Context, s *models.VerificationSecret) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[s.Email] = *s
	return nil
}

// Token returns the last secret sent to email, or "".
func (m *Mailbox) Token(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.secrets[email].Token
}

// Server is a running issuing server backed by in-memory repositories.
type Server struct {
	URL      string
	Key      *keys.KeyPair
	Mail     *Mailbox
	Secrets  *services.SecretManager
	Sessions *services.SessionManager
}

// Options adjusts the server under test. Zero values pick test defaults.
type Options struct {
	CertificateValidity time.Duration
	Resolver            services.KeyResolver
}

// Start serves the wsapi on an httptest server using clk for all time
// decisions and stops it when the test ends.
func Start(t testing.TB, clk clock.Clock, opts Options) *Server {
	t.Helper()

	if opts.CertificateValidity == 0 {
		opts.CertificateValidity = time.Hour
	}

	log := logging.Discard()
	repos := repomanager.NewInMemoryRepositoryManager(clk.Now)
	hasher := services.NewBcryptHasher(bcrypt.MinCost, 4, time.Second)
	mail := &Mailbox{secrets: make(map[string]models.VerificationSecret)}

	secrets := services.NewSecretManager(repos, mail, services.NewThrottle(time.Second, clk), clk, time.Hour, log)
	sessions := services.NewSessionManager(repos, hasher, clk, 24*time.Hour, log)
	accounts := services.NewAccountService(repos, secrets, sessions, hasher, log)

	key, err := keys.Generate(keys.RS256, clk.Now())
	require.NoError(t, err)
	ca := services.NewCertificateAuthority(repos, sessions, key, Issuer, opts.CertificateValidity, clk, log)

	h := wsapi.NewHandler(wsapi.Services{
		Secrets:     secrets,
		Sessions:    sessions,
		Accounts:    accounts,
		CA:          ca,
		AddressInfo: services.NewAddressInfoService(opts.Resolver, accounts, log),
	}, wsapi.Options{CookieSecret: []byte("servertest"), CookieValidity: 24 * time.Hour}, clk, log)

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(func() {
		srv.Close()
		secrets.Wait()
		sessions.Wait()
	})

	return &Server{URL: srv.URL, Key: key, Mail: mail, Secrets: secrets, Sessions: sessions}
}
