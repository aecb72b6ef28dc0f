package testpilot

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kamilpajak/testpilot/internal/app"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the gateway over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.Serve(ctx)
		})
	},
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "Port to listen on (default: server.port)")
}
