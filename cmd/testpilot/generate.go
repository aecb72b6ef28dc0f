package testpilot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kamilpajak/testpilot/internal/app"
	"github.com/kamilpajak/testpilot/internal/testcode"
	"github.com/kamilpajak/testpilot/pkg/models"
)

// errFailed signals a failed result that has already been printed.
var errFailed = errors.New("operation failed")

var (
	generateContext  string
	generatePageURL  string
	generatePageFile string
	generateExisting string
	generateSave     bool
	generateName     string
	outputDir        string
	assumeYes        bool
)

var generateCmd = &cobra.Command{
	Use:   "generate <requirements>",
	Short: "Generate a Playwright test from a description",
	Long: `Generate a Playwright test from a natural-language description.

The test is printed to stdout. With --save it is written to the output
directory after confirmation.

Examples:
  testpilot generate "user logs in with email and password"
  testpilot generate "add item to cart" --page-url https://shop.example.com --save
  testpilot generate "fill in the signup form" --page-file ./build/signup.html
  testpilot generate "search for products" --existing tests/search.spec.ts --mock`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&generateContext, "context", "", "Additional context for the AI service")
	generateCmd.Flags().StringVar(&generatePageURL, "page-url", "", "Live page to snapshot as context")
	generateCmd.Flags().StringVar(&generatePageFile, "page-file", "", "Saved HTML page to snapshot as context")
	generateCmd.Flags().StringVar(&generateExisting, "existing", "", "File with existing tests to use as context")
	generateCmd.Flags().BoolVarP(&generateSave, "save", "s", false, "Save the generated test")
	generateCmd.Flags().StringVar(&generateName, "name", "", "Test name used for the file (default: the requirements)")
	generateCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for saved tests (default: storage.output_dir)")
	generateCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Save without asking for confirmation")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	req := models.GenerationRequest{
		Requirements: strings.Join(args, " "),
		Context:      generateContext,
		PageURL:      generatePageURL,
	}
	if generateExisting != "" {
		data, err := os.ReadFile(generateExisting)
		if err != nil {
			return fmt.Errorf("failed to read existing tests: %w", err)
		}
		req.ExistingTests = string(data)
	}

	if generatePageFile != "" {
		if _, err := os.Stat(generatePageFile); err != nil {
			return fmt.Errorf("failed to read page: %w", err)
		}
		if !browsersAvailable() {
			return errors.New("playwright browsers are not installed; run 'testpilot install-browsers'")
		}
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if generatePageFile != "" {
			stop := startProgress(os.Stderr, "Capturing page...")
			text, err := a.Pages.SnapshotFile(ctx, generatePageFile)
			stop()
			if err != nil {
				return fmt.Errorf("failed to capture page: %w", err)
			}
			req.Context = withPageContext(req.Context, filepath.Base(generatePageFile), text)
		}

		stop := startProgress(os.Stderr, "Generating test...")
		res, err := a.Gateway.GenerateTest(ctx, req)
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
		if !generateSave {
			return nil
		}

		name := generateName
		if name == "" {
			name = req.Requirements
		}
		return saveWithApproval(ctx, cmd, a, res.Code, name, resolveOutputDir(a))
	})
}

func withPageContext(existing, name, text string) string {
	section := fmt.Sprintf("Page content (%s):\n%s", name, strings.TrimSpace(text))
	if strings.TrimSpace(existing) == "" {
		return section
	}
	return strings.TrimRight(existing, "\n") + "\n\n" + section
}

func resolveOutputDir(a *app.App) string {
	if outputDir != "" {
		return outputDir
	}
	return a.Config.Storage.OutputDir
}

// saveWithApproval asks before writing unless --yes was given.
func saveWithApproval(ctx context.Context, cmd *cobra.Command, a *app.App, code, name, dir string) error {
	target := filepath.Join(dir, testcode.FileName(name))
	if !assumeYes && !confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), fmt.Sprintf("Save test to %s?", target)) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Not saved.")
		return nil
	}

	res, err := a.Gateway.SaveTest(ctx, models.SaveRequest{Code: code, TestName: name, OutputDir: dir})
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	printSaved(cmd.ErrOrStderr(), cmd.OutOrStdout(), res)
	if !res.OK() {
		return errFailed
	}
	return nil
}
