package testpilot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kamilpajak/testpilot/internal/app"
	"github.com/kamilpajak/testpilot/internal/database"
)

var (
	historyLimit  int
	historyFile   string
	historyPrune  time.Duration
	historyDelete string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List tests recorded in the saved-test index",
	Long: `List saved tests recorded in the database index, newest first.
Requires database.url (or TESTPILOT_DATABASE_URL).

Examples:
  testpilot history --limit 20
  testpilot history --file tests/login.spec.ts
  testpilot history --prune 720h
  testpilot history --delete 6f1c2b7e-8a51-4c1e-9d7a-2f0b4c3d5e6a`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of entries")
	historyCmd.Flags().StringVar(&historyFile, "file", "", "Only show saves of this file")
	historyCmd.Flags().DurationVar(&historyPrune, "prune", 0, "Delete entries older than this duration instead of listing")
	historyCmd.Flags().StringVar(&historyDelete, "delete", "", "Delete one entry by ID (the test file is kept)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	var deleteID uuid.UUID
	if historyDelete != "" {
		id, err := uuid.Parse(historyDelete)
		if err != nil {
			return fmt.Errorf("invalid entry id %q: %w", historyDelete, err)
		}
		deleteID = id
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if a.DB == nil {
			return errors.New("history requires a database: set database.url or TESTPILOT_DATABASE_URL")
		}

		if deleteID != uuid.Nil {
			entry, err := a.DB.GetSavedTestByID(ctx, deleteID)
			if err != nil {
				return fmt.Errorf("failed to look up entry: %w", err)
			}
			if entry == nil {
				return fmt.Errorf("no history entry with id %s", deleteID)
			}
			if err := a.DB.DeleteSavedTest(ctx, deleteID); err != nil {
				return fmt.Errorf("failed to delete entry: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted entry for %s\n", entry.FilePath)
			return nil
		}

		if historyPrune > 0 {
			n, err := a.DB.DeleteOldSavedTests(ctx, time.Now().Add(-historyPrune))
			if err != nil {
				return fmt.Errorf("failed to prune history: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d entries\n", n)
			return nil
		}

		params := database.ListSavedTestsParams{Limit: historyLimit}
		if historyFile != "" {
			params.FilePath = &historyFile
		}
		tests, err := a.DB.ListSavedTests(ctx, params)
		if err != nil {
			return fmt.Errorf("failed to list history: %w", err)
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), tests)
		}
		total, err := a.DB.CountSavedTests(ctx)
		if err != nil {
			return fmt.Errorf("failed to count history: %w", err)
		}
		printHistory(cmd.OutOrStdout(), tests, total)
		return nil
	})
}
