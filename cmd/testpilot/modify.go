package testpilot

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kamilpajak/testpilot/internal/app"
	"github.com/kamilpajak/testpilot/pkg/models"
)

var modifySave bool

var modifyCmd = &cobra.Command{
	Use:   "modify <file> <request>",
	Short: "Rewrite an existing test from an instruction",
	Long: `Modify an existing Playwright test according to a natural-language
instruction. The new version is printed to stdout; --save writes it back
next to the original after confirmation.

Examples:
  testpilot modify tests/login.spec.ts "also check the remember-me box"
  testpilot modify tests/cart.spec.ts "wait for the cart badge" --save --yes`,
	Args: cobra.MinimumNArgs(2),
	RunE: runModify,
}

func init() {
	modifyCmd.Flags().BoolVarP(&modifySave, "save", "s", false, "Save the modified test")
	modifyCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Save without asking for confirmation")
}

func runModify(cmd *cobra.Command, args []string) error {
	req := models.ModifyRequest{
		FilePath:            args[0],
		ModificationRequest: strings.Join(args[1:], " "),
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		stop := startProgress(os.Stderr, "Modifying test...")
		res, err := a.Gateway.ModifyTest(ctx, req)
		stop()
		if err != nil {
			return err
		}

		if jsonOutput {
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
		} else {
			printGeneration(cmd.ErrOrStderr(), cmd.OutOrStdout(), res)
		}
		if !res.OK() {
			return errFailed
		}
		if !modifySave {
			return nil
		}
		return saveWithApproval(ctx, cmd, a, res.Code, testNameFromPath(req.FilePath), filepath.Dir(req.FilePath))
	})
}
