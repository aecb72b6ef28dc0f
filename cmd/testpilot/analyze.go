package testpilot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kamilpajak/testpilot/internal/app"
	"github.com/kamilpajak/testpilot/internal/testcode"
	"github.com/kamilpajak/testpilot/pkg/models"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Review the quality of a Playwright test",
	Long: `Analyze a Playwright test file and report its quality, coverage and
suggested improvements.

Examples:
  testpilot analyze tests/login.spec.ts
  testpilot analyze tests/login.spec.ts --json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	path := args[0]
	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read test: %w", err)
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		stop := startProgress(os.Stderr, "Analyzing test...")
		res, err := a.Gateway.AnalyzeTest(ctx, models.AnalysisRequest{
			TestCode: string(code),
			TestName: testNameFromPath(path),
		})
		stop()
		if err != nil {
			return err
		}

		if jsonOutput {
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
		} else {
			printAnalysis(cmd.ErrOrStderr(), cmd.OutOrStdout(), res)
		}
		if !res.OK() {
			return errFailed
		}
		return nil
	})
}

// testNameFromPath turns tests/login-flow.spec.ts into login-flow.
func testNameFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, testcode.FileSuffix)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
