package testpilot

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kamilpajak/testpilot/internal/app"
	"github.com/kamilpajak/testpilot/pkg/models"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find existing tests related to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", models.DefaultSearchResults, "Maximum number of results")
}

func runSearch(cmd *cobra.Command, args []string) error {
	req := models.SearchRequest{Query: strings.Join(args, " "), NResults: searchLimit}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		stop := startProgress(os.Stderr, "Searching tests...")
		res, err := a.Gateway.SearchTests(ctx, req)
		stop()
		if err != nil {
			return err
		}

		if jsonOutput {
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
		} else {
			printSearch(cmd.ErrOrStderr(), cmd.OutOrStdout(), res)
		}
		if !res.OK() {
			return errFailed
		}
		return nil
	})
}
