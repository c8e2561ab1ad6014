package core

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/labimport/internal/logging"
	"github.com/google/uuid"
)

// Default importer limits, used for zero option values.
const (
	DefaultMaxFileSize = 10 << 20
	DefaultInFlight    = 1
	DefaultRunWait     = 5 * time.Minute
	DefaultRunTimeout  = time.Hour
)

// ImporterOptions tunes one importer. Zero values fall back to the defaults.
type ImporterOptions struct {
	MaxFileSize    int64         // Per-file byte limit
	InFlight       int           // Files between fetch and cleanup at once
	RunWait        time.Duration // How long an overlapping run waits for the slot
	RunTimeout     time.Duration // Bounds connecting, listing and reading; admitted files always finish
	DeleteImported bool          // Remove imported files from the source
	Observer       RunObserver
}

// RunObserver receives run and file accounting, e.g. for metrics.
type RunObserver interface {
	FileProcessed(source string, item *ImportItem)
	RunFinished(source string, report RunReport)
}

type nopObserver struct{}

func (nopObserver) FileProcessed(string, *ImportItem) {}
func (nopObserver) RunFinished(string, RunReport)     {}

// RunReport summarizes one run of one source.
type RunReport struct {
	RunID      string
	Source     string
	Trigger    string
	StartedAt  time.Time
	Duration   time.Duration
	Files      int // Files that retired through the cleanup stage
	Imported   int
	Duplicates int
	Failed     int // Parse or store failures
	Deleted    int
	Err        error // Run-level failure, nil on success
}

// Result maps the report onto the literal entry point outcome.
func (r RunReport) Result() RunResult {
	if r.Err != nil {
		return RunError
	}
	return RunSuccess
}

func (r *RunReport) add(item *ImportItem) {
	r.Files++
	switch {
	case item.ParseErr != nil || item.StoreErr != nil:
		r.Failed++
	case item.Outcome.Imported():
		r.Imported++
	case item.Outcome.Duplicate():
		r.Duplicates++
	}
	if item.Deleted {
		r.Deleted++
	}
}

// Importer runs the import pipeline for one source.
type Importer struct {
	name    string
	open    SourceOpener
	parser  Parser
	store   *ResultStore
	limiter *Limiter
	opts    ImporterOptions
}

// NewImporter creates the importer for the source called name.
func NewImporter(name string, open SourceOpener, parser Parser, store *ResultStore, opts ImporterOptions) *Importer {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.InFlight <= 0 {
		opts.InFlight = DefaultInFlight
	}
	if opts.RunWait <= 0 {
		opts.RunWait = DefaultRunWait
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = DefaultRunTimeout
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	return &Importer{
		name:    name,
		open:    open,
		parser:  parser,
		store:   store,
		limiter: NewRunLimiter(opts.RunWait),
		opts:    opts,
	}
}

// Name returns the source name.
func (im *Importer) Name() string { return im.name }

// Running reports whether a run currently holds the source.
func (im *Importer) Running() bool { return im.limiter.ActiveCount() > 0 }

// WaitForIdle blocks until no run holds the source or ctx is done.
func (im *Importer) WaitForIdle(ctx context.Context) error {
	return im.limiter.WaitForDrain(ctx)
}

// Run imports every file currently on the source. Per-file failures are
// counted in the report; only run-level failures set RunReport.Err.
func (im *Importer) Run(ctx context.Context) RunReport {
	report := RunReport{
		RunID:     uuid.NewString(),
		Source:    im.name,
		Trigger:   TriggerFromContext(ctx),
		StartedAt: time.Now(),
	}
	ctx = logging.ContextWithRun(ctx, report.RunID, im.name)
	logger := logging.FromContext(ctx)

	if err := im.limiter.Acquire(ctx); err != nil {
		report.Err = err
		logger.Error("import run not started",
			"trigger", report.Trigger,
			"error", err,
			"error_code", ErrorCode(err),
		)
		im.opts.Observer.RunFinished(im.name, report)
		return report
	}
	defer im.limiter.Release()

	logger.Info("import run started", "trigger", report.Trigger, "format", im.parser.Format())

	report.Err = im.run(ctx, &report)
	report.Duration = time.Since(report.StartedAt)

	if report.Err != nil {
		logger.Error("import run failed",
			"error", report.Err,
			"error_code", ErrorCode(report.Err),
			"files", report.Files,
			"imported", report.Imported,
			"duration_ms", report.Duration.Milliseconds(),
		)
	} else {
		logger.Info("import run finished",
			"files", report.Files,
			"imported", report.Imported,
			"duplicates", report.Duplicates,
			"failed", report.Failed,
			"deleted", report.Deleted,
			"duration_ms", report.Duration.Milliseconds(),
		)
	}

	im.opts.Observer.RunFinished(im.name, report)
	return report
}

func (im *Importer) run(ctx context.Context, report *RunReport) error {
	ctx, cancel := context.WithTimeout(ctx, im.opts.RunTimeout)
	defer cancel()

	src, err := im.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := src.Close(); err != nil {
			logging.FromContext(ctx).Warn("source close failed", "error", err)
		}
	}()

	files, err := src.List(ctx)
	if err != nil {
		return err
	}
	logging.FromContext(ctx).Debug("source listed", "driver", src.Driver(), "files", len(files))

	p := &pipeline{
		name:           im.name,
		source:         src,
		parser:         im.parser,
		store:          im.store,
		inFlight:       NewLimiter(im.opts.InFlight, 0, nil),
		maxFileSize:    im.opts.MaxFileSize,
		deleteImported: im.opts.DeleteImported,
		observer:       im.opts.Observer,
		report:         report,
	}
	if err := p.run(ctx, files); err != nil {
		return fmt.Errorf("run %s: %w", im.name, err)
	}
	return nil
}
