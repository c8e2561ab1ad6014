// Package cli implements the labimport commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/labimport/internal/config"
	"github.com/JonMunkholm/labimport/internal/core"
	"github.com/JonMunkholm/labimport/internal/database"
	"github.com/JonMunkholm/labimport/internal/database/postgres"
	"github.com/JonMunkholm/labimport/internal/database/sqlite"
	"github.com/JonMunkholm/labimport/internal/logging"
	"github.com/JonMunkholm/labimport/internal/metrics"
	"github.com/JonMunkholm/labimport/internal/parser"
	"github.com/JonMunkholm/labimport/internal/source"
)

// App is the wired import service shared by the commands.
type App struct {
	Config       *config.Config
	Store        database.Store
	Metrics      *metrics.Collector
	History      *core.RunHistory
	Orchestrator *core.Orchestrator
}

// loadConfig reads envFile when present, then loads and validates the
// environment and configures logging.
func loadConfig(envFile string) (*config.Config, error) {
	if envFile != "" {
		if err := godotenv.Overload(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", envFile, err)
			}
			slog.Debug("no env file found, using environment variables", "path", envFile)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())
	return cfg, nil
}

// openStore connects to the configured result database.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (database.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "postgres":
		return postgres.Connect(ctx, cfg)
	case "sqlite":
		return sqlite.Open(cfg.URL)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// Build opens the store, applies the schema when configured and wires one
// importer per enabled source into the orchestrator.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	slog.Info("connected to database", "driver", cfg.Database.Driver)

	if cfg.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	loc, err := cfg.Import.Location()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("import timezone: %w", err)
	}

	app := &App{
		Config:  cfg,
		Store:   store,
		Metrics: metrics.New(),
		History: core.NewRunHistory(core.DefaultHistorySize),
	}
	results := core.NewResultStore(store)

	hl7, hl7At, err := app.importer(core.SourceHL7, core.FormatHL7, cfg.HL7Source, results, loc)
	if err != nil {
		store.Close()
		return nil, err
	}
	csv, csvAt, err := app.importer(core.SourceCSV, core.FormatCSV, cfg.CSVSource, results, loc)
	if err != nil {
		store.Close()
		return nil, err
	}
	app.Orchestrator = core.NewOrchestrator(hl7, hl7At, csv, csvAt)

	return app, nil
}

// importer builds the importer of one source. A disabled source yields a nil
// importer, which the orchestrator treats as switched off.
func (a *App) importer(name string, format core.Format, sc config.SourceConfig, results *core.ResultStore, loc *time.Location) (*core.Importer, core.Schedule, error) {
	at, err := core.ParseClockTime(sc.Schedule)
	if err != nil {
		return nil, core.Schedule{}, fmt.Errorf("%s schedule: %w", name, err)
	}
	sched := core.Schedule{At: at, Location: loc}

	if !sc.Enabled {
		slog.Info("source disabled", "source", name)
		return nil, sched, nil
	}

	open, err := source.Opener(sc)
	if err != nil {
		return nil, sched, fmt.Errorf("%s source: %w", name, err)
	}
	p, err := parser.New(format, loc)
	if err != nil {
		return nil, sched, err
	}

	im := core.NewImporter(name, open, p, results, core.ImporterOptions{
		MaxFileSize:    a.Config.Import.MaxFileSize,
		InFlight:       a.Config.Import.InFlight,
		RunWait:        a.Config.Import.RunWait,
		RunTimeout:     a.Config.Import.RunTimeout,
		DeleteImported: a.Config.Import.DeleteImported,
		Observer:       core.Observers(a.Metrics, a.History),
	})
	slog.Info("source configured",
		"source", name,
		"driver", sc.Driver,
		"schedule", at.String(),
	)
	return im, sched, nil
}

// WaitForIdle blocks until no import run is active or ctx ends.
func (a *App) WaitForIdle(ctx context.Context) error {
	for _, im := range a.Orchestrator.Importers() {
		if err := im.WaitForIdle(ctx); err != nil {
			return fmt.Errorf("%s: %w", im.Name(), err)
		}
	}
	return nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.Store.Close()
}
