package testpilot

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kamilpajak/testpilot/internal/pagecontext"
)

var (
	installBrowsers   = pagecontext.Install
	browsersAvailable = pagecontext.IsAvailable
)

var installBrowsersCmd = &cobra.Command{
	Use:   "install-browsers",
	Short: "Install the headless Chromium used for page snapshots",
	Long: `Download the playwright driver and Chromium. They are needed by
page_context.enabled and by generate --page-file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stop := startProgress(os.Stderr, "Installing Chromium...")
		err := installBrowsers()
		stop()
		if err != nil {
			return fmt.Errorf("failed to install browsers: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Chromium installed\n", color.GreenString("✓"))
		return nil
	},
}
