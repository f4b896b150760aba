package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/client/client"
	"github.com/dmitrijs2005/idkeeper/internal/clock"
	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/keys"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/dmitrijs2005/idkeeper/internal/server/servertest"
	serverservices "github.com/dmitrijs2005/idkeeper/internal/server/services"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	testPassword = "longenough"
	testAudience = "https://rp.example:443"
)

func openRepos(t *testing.T) *client.Repositories {
	t.Helper()
	repos, err := client.InitDatabase(context.Background(), filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })
	return repos
}

type env struct {
	server      *servertest.Server
	serverClock *clock.FakeClock
	clock       *clock.FakeClock
	api         *client.HTTPClient
	repos       *client.Repositories
	session     *Session
	vault       *Vault
	cache       *CredentialCache
	markers     *StagingMarkers
	builder     *AssertionBuilder
	identity    *IdentityService
}

type envOptions struct {
	// skew is added to the client's clock relative to the server's.
	skew        time.Duration
	validity    time.Duration
	provisioner Provisioner
	resolver    serverservices.KeyResolver
}

func newEnv(t *testing.T, opts envOptions) *env {
	t.Helper()

	serverClock := clock.Fake(testNow)
	srv := servertest.Start(t, serverClock, servertest.Options{
		CertificateValidity: opts.validity,
		Resolver:            opts.resolver,
	})

	clk := clock.Fake(testNow.Add(opts.skew))
	api, err := client.NewHTTPClient(srv.URL, 5*time.Second, clk)
	require.NoError(t, err)

	log := logging.Discard()
	repos := openRepos(t)
	session := NewSession(api, clk)
	vault := NewVault(repos.KV)
	cache := NewCredentialCache(repos.KV, vault, common.CertificateSafetyMargin, log)
	markers := NewStagingMarkers(repos.KV)
	builder := NewAssertionBuilder(api, session, cache, opts.provisioner, keys.ES256, clk, log)

	identity := NewIdentityService(Deps{
		API:       api,
		Session:   session,
		Vault:     vault,
		Cache:     cache,
		Markers:   markers,
		Builder:   builder,
		Creation:  NewPoller(api.UserCreationStatus, markers, clk, 3*time.Second, log),
		Additions: NewPoller(api.EmailAdditionStatus, markers, clk, 3*time.Second, log),
	}, log)

	return &env{
		server:      srv,
		serverClock: serverClock,
		clock:       clk,
		api:         api,
		repos:       repos,
		session:     session,
		vault:       vault,
		cache:       cache,
		markers:     markers,
		builder:     builder,
		identity:    identity,
	}
}

// advance moves both clocks.
func (e *env) advance(d time.Duration) {
	e.serverClock.Advance(d)
	e.clock.Advance(d)
}

func (e *env) token(t *testing.T, email string) string {
	t.Helper()
	return e.nextToken(t, email, "")
}

// nextToken waits for a secret for email other than prev.
func (e *env) nextToken(t *testing.T, email, prev string) string {
	t.Helper()
	require.Eventually(t, func() bool {
		tok := e.server.Mail.Token(email)
		return tok != "" && tok != prev
	}, 2*time.Second, 10*time.Millisecond)
	return e.server.Mail.Token(email)
}

// signUp registers email through the identity service and logs in.
func (e *env) signUp(t *testing.T, email string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.identity.Register(ctx, email, "https://rp.example", PollCallbacks{}))
	_, err := e.identity.CompleteRegistration(ctx, e.token(t, email), []byte(testPassword))
	require.NoError(t, err)
}
