// Package server wires the issuing server together: storage, the signing
// key, the services and the HTTP endpoint, and runs them until a signal
// arrives.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/clock"
	"github.com/dmitrijs2005/idkeeper/internal/discovery"
	"github.com/dmitrijs2005/idkeeper/internal/keys"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/dmitrijs2005/idkeeper/internal/netx"
	"github.com/dmitrijs2005/idkeeper/internal/server/config"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/idkeeper/internal/server/services"
	"github.com/dmitrijs2005/idkeeper/internal/server/wsapi"
	"golang.org/x/sync/errgroup"
)

const (
	sweepInterval    = 10 * time.Minute
	discoveryTimeout = 10 * time.Second
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	repos    repomanager.RepositoryManager
	secrets  *services.SecretManager
	sessions *services.SessionManager
	handler  http.Handler
}

// openRepositories picks PostgreSQL when a DSN is configured and memory
// otherwise.
func openRepositories(ctx context.Context, dsn string) (repomanager.RepositoryManager, error) {
	if dsn == "" {
		return repomanager.NewInMemoryRepositoryManager(nil), nil
	}
	m, err := repomanager.OpenPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// keySource picks S3 when a bucket is configured and a local file otherwise.
func keySource(ctx context.Context, c *config.Config) (keys.Source, error) {
	if c.S3Bucket == "" {
		return keys.FileSource{Path: c.KeyFile}, nil
	}
	client, err := keys.NewS3Client(ctx, keys.S3Options{
		Region:       c.S3Region,
		AccessKey:    c.S3AccessKey,
		SecretKey:    c.S3SecretKey,
		BaseEndpoint: c.S3BaseEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return keys.S3Source{Client: client, Bucket: c.S3Bucket, Key: c.S3Key}, nil
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	clk := clock.Real()

	repos, err := openRepositories(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := repos.RunMigrations(ctx); err != nil {
		_ = repos.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	src, err := keySource(ctx, c)
	if err != nil {
		_ = repos.Close()
		return nil, err
	}
	key, err := keys.LoadOrCreate(ctx, src, keys.Algorithm(c.KeyAlgorithm), clk.Now())
	if err != nil {
		_ = repos.Close()
		return nil, fmt.Errorf("signing key: %w", err)
	}

	hasher := services.NewBcryptHasher(c.BcryptWorkFactor, int64(c.MaxConcurrentHashes), c.HashQueueTimeout)
	notifier := services.NewLogNotifier(logger, strings.TrimRight(c.PublicURL, "/"))

	secrets := services.NewSecretManager(repos, notifier, services.NewThrottle(c.MinTimeBetweenEmails, clk), clk, c.SecretTTL, logger)
	sessions := services.NewSessionManager(repos, hasher, clk, c.AuthDuration, logger)
	accounts := services.NewAccountService(repos, secrets, sessions, hasher, logger)
	ca := services.NewCertificateAuthority(repos, sessions, key, c.Hostname, c.CertificateValidity, clk, logger)

	resolver := discovery.NewResolver(&http.Client{}, discovery.Options{
		Timeout:     discoveryTimeout,
		PositiveTTL: 6 * time.Hour,
		NegativeTTL: 5 * time.Minute,
	}, clk, logger)

	handler := wsapi.NewHandler(wsapi.Services{
		Secrets:     secrets,
		Sessions:    sessions,
		Accounts:    accounts,
		CA:          ca,
		AddressInfo: services.NewAddressInfoService(resolver, accounts, logger),
	}, wsapi.Options{
		CookieSecret:   []byte(c.SecretKey),
		CookieValidity: c.AuthDuration,
		SecureCookie:   strings.HasPrefix(c.PublicURL, "https://"),
	}, clk, logger)

	return &App{
		config:   c,
		logger:   logger,
		repos:    repos,
		secrets:  secrets,
		sessions: sessions,
		handler:  handler.Routes(),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// sweepSecrets periodically removes expired verification secrets.
func (app *App) sweepSecrets(ctx context.Context) error {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n, err := app.secrets.Sweep(ctx)
			if err != nil {
				app.logger.Error(ctx, "sweeping secrets failed", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "expired secrets removed", "count", n)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return netx.NewHTTPServer(app.config.EndpointAddrHTTP, app.handler, app.logger).Run(ctx)
	})
	g.Go(func() error {
		return app.sweepSecrets(ctx)
	})

	err := g.Wait()

	app.secrets.Wait()
	app.sessions.Wait()
	if cerr := app.repos.Close(); cerr != nil {
		app.logger.Error(ctx, "closing storage failed", "error", cerr)
	}
	app.logger.Info(ctx, "App stopped")
	return err
}
