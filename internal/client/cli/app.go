package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/dmitrijs2005/idkeeper/internal/client/client"
	"github.com/dmitrijs2005/idkeeper/internal/client/config"
	"github.com/dmitrijs2005/idkeeper/internal/client/services"
	"github.com/dmitrijs2005/idkeeper/internal/clock"
	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/keys"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
)

// cliSite is reported to the server as the site an address is staged for.
const cliSite = "idkeeper-cli"

var errEmptyInput = errors.New("empty input")

type App struct {
	config   *config.Config
	repos    *client.Repositories
	identity *services.IdentityService
	http     *http.Client
	logger   logging.Logger
	reader   *bufio.Reader
	out      io.Writer

	mu            sync.Mutex
	userName      string
	lastAssertion string
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stderr, c.LogLevel)

	repos, err := client.InitDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	app, err := newApp(c, repos, clock.Real(), bufio.NewReader(os.Stdin), os.Stdout, logger)
	if err != nil {
		_ = repos.Close()
		return nil, err
	}
	return app, nil
}

func newApp(c *config.Config, repos *client.Repositories, clk clock.Clock, in *bufio.Reader, out io.Writer, logger logging.Logger) (*App, error) {
	api, err := client.NewHTTPClient(c.ServerURL, c.RequestTimeout, clk)
	if err != nil {
		return nil, err
	}

	session := services.NewSession(api, clk)
	vault := services.NewVault(repos.KV)
	cache := services.NewCredentialCache(repos.KV, vault, common.CertificateSafetyMargin, logger)
	markers := services.NewStagingMarkers(repos.KV)

	identity := services.NewIdentityService(services.Deps{
		API:       api,
		Session:   session,
		Vault:     vault,
		Cache:     cache,
		Markers:   markers,
		Builder:   services.NewAssertionBuilder(api, session, cache, nil, keys.ES256, clk, logger),
		Creation:  services.NewPoller(api.UserCreationStatus, markers, clk, c.PollInterval, logger),
		Additions: services.NewPoller(api.EmailAdditionStatus, markers, clk, c.PollInterval, logger),
	}, logger)

	return &App{
		config:   c,
		repos:    repos,
		identity: identity,
		http:     &http.Client{Timeout: c.RequestTimeout},
		logger:   logger,
		reader:   in,
		out:      out,
	}, nil
}

// Run blocks in the REPL until the user exits, then ends the session and
// closes the local store.
func (a *App) Run(ctx context.Context) {
	defer func() {
		if err := a.repos.Close(); err != nil {
			a.logger.Error(ctx, "closing local store", "error", err)
		}
	}()
	defer func() {
		if a.isLoggedIn() {
			_ = a.identity.Logout(ctx)
		}
	}()

	printlnFn("Welcome to idkeeper (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, a.reader)
}

func (a *App) isLoggedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userName != ""
}

func (a *App) setUser(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.userName = name
}

func (a *App) getStatus() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.userName == "" {
		return ""
	}
	return fmt.Sprintf("(%s) ", a.userName)
}

// pollCallbacks reports poll outcomes as they arrive.
func (a *App) pollCallbacks(what string) services.PollCallbacks {
	return services.PollCallbacks{
		OnSuccess: func(address string, state services.PollState) {
			printlnFn(fmt.Sprintf("%s: %s %s", address, what, state))
		},
		OnFailure: func(address string, state services.PollState, err error) {
			if err != nil {
				printlnFn(fmt.Sprintf("%s: %s %s: %v", address, what, state, err))
				return
			}
			printlnFn(fmt.Sprintf("%s: %s %s", address, what, state))
		},
	}
}
