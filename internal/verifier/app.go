package verifier

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/idkeeper/internal/clock"
	"github.com/dmitrijs2005/idkeeper/internal/discovery"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/dmitrijs2005/idkeeper/internal/netx"
	"github.com/dmitrijs2005/idkeeper/internal/verifier/config"
	"golang.org/x/sync/errgroup"
)

// App runs the verifier's HTTP and gRPC endpoints.
type App struct {
	config   *config.Config
	logger   logging.Logger
	verifier *Verifier
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	clk := clock.Real()
	client := &http.Client{}

	var issuerKeys IssuerKeys
	if c.IssuerKeyFile != "" {
		k, err := LoadKeyFile(c.IssuerKeyFile)
		if err != nil {
			return nil, err
		}
		issuerKeys = k
	} else {
		issuerKeys = NewWellKnownKeys(client, c.IssuerURL, c.IssuerKeyTTL, clk)
	}

	resolver := discovery.NewResolver(client, discovery.Options{
		Timeout:     c.DiscoveryTimeout,
		PositiveTTL: c.DiscoveryPositiveTTL,
		NegativeTTL: c.DiscoveryNegativeTTL,
		Insecure:    c.InsecureDiscovery,
	}, clk, logger)

	return &App{
		config:   c,
		logger:   logger,
		verifier: New(c.Issuer, issuerKeys, resolver, clk, logger),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting verifier...")
	app.initSignalHandler(cancelFunc)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h := NewHTTPHandler(app.verifier, app.logger)
		return netx.NewHTTPServer(app.config.EndpointAddrHTTP, h.Routes(), app.logger).Run(ctx)
	})
	if app.config.EndpointAddrGRPC != "" {
		g.Go(func() error {
			return NewGRPCServer(app.config.EndpointAddrGRPC, app.verifier, app.logger).Run(ctx)
		})
	}
	return g.Wait()
}
