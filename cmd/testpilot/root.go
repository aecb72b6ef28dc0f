package testpilot

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kamilpajak/testpilot/internal/app"
	"github.com/kamilpajak/testpilot/internal/config"
	"github.com/kamilpajak/testpilot/internal/observability"
)

var (
	configFile string
	forceMock  bool
	noFallback bool
	jsonOutput bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "testpilot",
	Short: "AI-assisted Playwright test generation",
	Long: `testpilot generates, analyzes, modifies, searches and saves Playwright
tests through an AI service. When the service is unreachable it switches to a
built-in simulator so the workflow keeps going offline.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default: ./testpilot.yaml or $HOME/.testpilot/testpilot.yaml)")
	rootCmd.PersistentFlags().BoolVar(&forceMock, "mock", false, "Use the simulator instead of the AI service")
	rootCmd.PersistentFlags().BoolVar(&noFallback, "no-fallback", false, "Report AI service failures instead of switching to the simulator")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(modifyCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(installBrowsersCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logger.Level = "debug"
	}
	if servePort != "" {
		cfg.Server.Port = servePort
	}
	return cfg, nil
}

// withApp loads configuration, wires the gateway and runs fn with it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Logger, zapcore.Lock(os.Stderr))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg, logger, app.Overrides{ForceMock: forceMock, NoFallback: noFallback})
	if err != nil {
		_ = logger.Sync()
		return err
	}
	defer a.Close()

	ctx, _ = observability.EnsureRequestID(ctx)
	logger.Debug("Running command", zap.String("command", cmd.Name()), zap.String("request_id", observability.RequestID(ctx)))
	return fn(ctx, a)
}
