// Package app wires configuration into a running gateway: logger, metrics,
// backends, storage, the optional saved-test index and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kamilpajak/testpilot/internal/aiclient"
	"github.com/kamilpajak/testpilot/internal/api"
	"github.com/kamilpajak/testpilot/internal/config"
	"github.com/kamilpajak/testpilot/internal/database"
	"github.com/kamilpajak/testpilot/internal/gateway"
	"github.com/kamilpajak/testpilot/internal/health"
	"github.com/kamilpajak/testpilot/internal/observability"
	"github.com/kamilpajak/testpilot/internal/pagecontext"
	"github.com/kamilpajak/testpilot/internal/simulator"
	"github.com/kamilpajak/testpilot/internal/storage"
	"github.com/kamilpajak/testpilot/pkg/models"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 30 * time.Second

// browsersAvailable reports whether playwright browsers are installed.
var browsersAvailable = pagecontext.IsAvailable

// Overrides are command-line switches applied on top of the configuration.
type Overrides struct {
	ForceMock  bool
	NoFallback bool
}

// App holds the wired components.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Client    *aiclient.Client
	Simulator *simulator.Engine
	Storage   *storage.FS
	Gateway   *gateway.Gateway
	Pages     *pagecontext.Browser

	// PageSnapshots is set when generation requests with a page URL are
	// snapshotted before dispatch.
	PageSnapshots bool

	// DB is nil when no database is configured.
	DB *database.DB
}

// New builds an App from cfg. When a database URL is configured, migrations
// run before the connection is opened.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, ov Overrides) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	mode, err := models.ParseMode(cfg.Gateway.InitialMode)
	if err != nil {
		return nil, err
	}
	if ov.ForceMock {
		mode = models.ModeSimulated
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
	}

	storeOpts := []storage.Option{storage.WithLogger(logger)}
	if cfg.Database.URL != "" {
		if err := database.Migrate(cfg.Database.URL); err != nil {
			return nil, err
		}
		db, err := database.New(ctx, cfg.Database.URL,
			database.WithMaxConns(cfg.Database.MaxConns),
			database.WithConnectTimeout(cfg.Database.ConnectTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.DB = db
		storeOpts = append(storeOpts, storage.WithRecorder(db))
	}
	a.Storage = storage.NewFS(storeOpts...)

	a.Client = aiclient.New(cfg.Backend.BaseURL,
		aiclient.WithTimeout(cfg.Backend.Timeout),
		aiclient.WithRateLimit(cfg.Backend.RequestsPerSecond, max(int(cfg.Backend.RequestsPerSecond), 1)),
		aiclient.WithLogger(logger),
	)

	a.Simulator = simulator.New(simulator.Options{
		MinDelay:       cfg.Simulator.MinDelay,
		MaxDelay:       cfg.Simulator.MaxDelay,
		ErrorInjection: cfg.Simulator.ErrorInjection,
		ErrorRate:      cfg.Simulator.ErrorRate,
		Seed:           cfg.Simulator.Seed,
		Store:          a.Storage,
		Logger:         logger,
	})

	gwOpts := []gateway.Option{
		gateway.WithInitialMode(mode),
		gateway.WithAutoFallback(cfg.Gateway.AutoFallback && !ov.NoFallback),
		gateway.WithFallbackOnEmptySearch(cfg.Gateway.FallbackOnEmptySearch),
		gateway.WithHealthTimeout(cfg.Backend.HealthTimeout),
		gateway.WithMetrics(a.Metrics),
		gateway.WithLogger(logger),
	}
	a.Pages = pagecontext.New(
		pagecontext.WithTimeout(cfg.PageContext.Timeout),
		pagecontext.WithLogger(logger),
	)
	if cfg.PageContext.Enabled {
		if browsersAvailable() {
			gwOpts = append(gwOpts, gateway.WithSnapshotter(a.Pages))
			a.PageSnapshots = true
		} else {
			logger.Warn("Page snapshots enabled but playwright browsers are not installed; run 'testpilot install-browsers'")
		}
	}
	a.Gateway = gateway.New(a.Client, a.Simulator, gwOpts...)

	logger.Debug("Gateway ready",
		zap.String("mode", mode.String()),
		zap.String("backend", cfg.Backend.BaseURL),
		zap.Bool("auto_fallback", a.Gateway.AutoFallback()),
		zap.Bool("database", a.DB != nil),
		zap.Bool("page_snapshots", a.PageSnapshots),
	)
	return a, nil
}

// Close releases resources.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
	_ = a.Logger.Sync()
}

// CheckDatabase pings the saved-test index. It is a no-op without one.
func (a *App) CheckDatabase(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	if err := a.DB.Ping(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}

// Handler returns the HTTP API for the gateway.
func (a *App) Handler() http.Handler {
	return api.NewServer(api.Config{
		Gateway: a.Gateway,
		Metrics: a.Metrics,
		Logger:  a.Logger,

		OutputRoot: a.Config.Storage.OutputDir,
	})
}

// Poller returns a health poller for the configured interval.
func (a *App) Poller() *health.Poller {
	return health.NewPoller(a.Config.Gateway.HealthInterval, a.Gateway.CheckHealth, a.Logger)
}

// Serve runs the HTTP API and the health poller until ctx is done, then
// shuts the server down gracefully.
func (a *App) Serve(ctx context.Context) error {
	srvCfg := a.Config.Server
	httpServer := &http.Server{
		Addr:         ":" + srvCfg.Port,
		Handler:      a.Handler(),
		ReadTimeout:  srvCfg.ReadTimeout,
		WriteTimeout: srvCfg.WriteTimeout,
		IdleTimeout:  srvCfg.IdleTimeout,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		a.Poller().Run(egCtx)
		return nil
	})
	eg.Go(func() error {
		a.Logger.Info("Starting server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		a.Logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	err := eg.Wait()
	a.Logger.Info("Server stopped")
	return err
}
