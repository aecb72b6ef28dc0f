package testpilot

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kamilpajak/testpilot/internal/app"
	"github.com/kamilpajak/testpilot/pkg/models"
)

var saveName string

var saveCmd = &cobra.Command{
	Use:   "save <file>",
	Short: "Save a test file through the AI service",
	Long: `Save test source into the output directory. Use "-" to read the
source from stdin, e.g. testpilot generate "login" | testpilot save - --name login.`,
	Args: cobra.ExactArgs(1),
	RunE: runSave,
}

func init() {
	saveCmd.Flags().StringVar(&saveName, "name", "", "Test name used for the file (default: the source file name)")
	saveCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for saved tests (default: storage.output_dir)")
}

func runSave(cmd *cobra.Command, args []string) error {
	var (
		code []byte
		err  error
	)
	if args[0] == "-" {
		code, err = io.ReadAll(cmd.InOrStdin())
	} else {
		code, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read test: %w", err)
	}

	name := saveName
	if name == "" && args[0] != "-" {
		name = testNameFromPath(args[0])
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		res, err := a.Gateway.SaveTest(ctx, models.SaveRequest{
			Code:      string(code),
			TestName:  name,
			OutputDir: resolveOutputDir(a),
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
		} else {
			printSaved(cmd.ErrOrStderr(), cmd.OutOrStdout(), res)
		}
		if !res.OK() {
			return errFailed
		}
		return nil
	})
}
