package testpilot

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kamilpajak/testpilot/internal/app"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the backend mode and the health of both backends",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			status, err := a.Gateway.Status(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), status)
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		})
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the active backend, switching to the simulator if the AI service is down",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			healthy := a.Gateway.CheckHealth(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", healthLabel(healthy), a.Gateway.Mode())
			if !healthy {
				return errors.New("active backend is unhealthy")
			}
			if a.DB == nil {
				return nil
			}
			dbErr := a.CheckDatabase(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "database: %s\n", healthLabel(dbErr == nil))
			return dbErr
		})
	},
}
