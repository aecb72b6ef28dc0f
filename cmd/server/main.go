// Package main provides the testpilot gateway server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kamilpajak/testpilot/internal/app"
	"github.com/kamilpajak/testpilot/internal/config"
	"github.com/kamilpajak/testpilot/internal/database"
	"github.com/kamilpajak/testpilot/internal/observability"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Config file")
		port        = flag.String("port", "", "Server port (overrides server.port)")
		mock        = flag.Bool("mock", false, "Start in simulated mode")
		migrateOnly = flag.Bool("migrate", false, "Run migrations and exit")
		migrateDown = flag.Bool("migrate-down", false, "Roll back all migrations and exit")
	)
	flag.Parse()

	if err := run(*configFile, *port, *mock, *migrateOnly, *migrateDown); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configFile, port string, mock, migrateOnly, migrateDown bool) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if port != "" {
		cfg.Server.Port = port
	}

	logger, err := observability.NewLogger(cfg.Logger, zapcore.Lock(os.Stdout))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if migrateDown {
		if cfg.Database.URL == "" {
			return fmt.Errorf("database.url is required for -migrate-down")
		}
		logger.Info("Rolling back database migrations...")
		if err := database.MigrateDown(cfg.Database.URL); err != nil {
			return err
		}
		logger.Info("Rollback complete")
		return nil
	}

	if migrateOnly {
		if cfg.Database.URL == "" {
			return fmt.Errorf("database.url is required for -migrate")
		}
		logger.Info("Running database migrations...")
		if err := database.Migrate(cfg.Database.URL); err != nil {
			return err
		}
		logger.Info("Migrations complete")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Overrides{ForceMock: mock})
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("Gateway configured",
		zap.String("mode", a.Gateway.Mode().String()),
		zap.String("backend", cfg.Backend.BaseURL),
		zap.Bool("auto_fallback", a.Gateway.AutoFallback()),
	)
	return a.Serve(ctx)
}
