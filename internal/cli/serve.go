package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/labimport/internal/web"
)

// ServeCmd returns the serve command: daily triggers plus the HTTP surface.
func ServeCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daily import triggers and the HTTP server",
		Long: `Start the long-running import service.

Each enabled source is imported once a day at HL7_SCHEDULE / CSV_SCHEDULE.
Manual runs are available at POST /api/labresults/import[/{source}].`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			triggers := app.Orchestrator.Start(ctx)
			for _, t := range triggers {
				slog.Info("trigger scheduled", "source", t.Name(), "next_run", t.NextRun())
			}

			server := web.NewServer(app.Orchestrator, app.Store, app.History, app.Metrics.Handler(), cfg)
			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start()
			}()

			var serveErr error
			select {
			case <-ctx.Done():
				slog.Info("shutting down...")
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					serveErr = err
				}
			}

			for _, t := range triggers {
				t.Stop()
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Error("shutdown error", "error", err)
			}
			if err := app.WaitForIdle(shutdownCtx); err != nil {
				slog.Warn("import runs did not complete in time", "error", err)
			}
			return serveErr
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before configuration")
	return cmd
}
