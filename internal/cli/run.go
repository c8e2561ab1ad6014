package cli

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/labimport/internal/core"
)

// ErrRunFailed is returned when an import run reports "error".
var ErrRunFailed = errors.New("import run failed")

// RunCmd returns the run command, a one-shot import.
func RunCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "run [hl7|csv|all]",
		Short: "Import once from one source or from all of them",
		Long: `Run one import and print its result, "success" or "error".

Without an argument every enabled source is imported. The command exits
non-zero when the run reports "error".`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{core.SourceHL7, core.SourceCSV, "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "all"
			if len(args) == 1 {
				name = args[0]
			}

			cfg, err := loadConfig(envFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx = core.ContextWithTrigger(ctx, core.TriggerCLI)
			result, err := app.Orchestrator.Import(ctx, name)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), result)
			if result != core.RunSuccess {
				return ErrRunFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before configuration")
	return cmd
}
