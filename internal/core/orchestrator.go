package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Source names owned by the orchestrator.
const (
	SourceHL7 = "hl7"
	SourceCSV = "csv"
)

// Schedule places a source's daily trigger.
type Schedule struct {
	At       ClockTime
	Location *time.Location
}

// Orchestrator owns one importer per source and their daily triggers. A nil
// importer marks a disabled source.
type Orchestrator struct {
	hl7, csv     *Importer
	hl7At, csvAt Schedule
}

// NewOrchestrator wires the two sources with their schedules.
func NewOrchestrator(hl7 *Importer, hl7At Schedule, csv *Importer, csvAt Schedule) *Orchestrator {
	return &Orchestrator{hl7: hl7, csv: csv, hl7At: hl7At, csvAt: csvAt}
}

// ImportFromHL7Source runs the HL7 source once.
func (o *Orchestrator) ImportFromHL7Source(ctx context.Context) RunResult {
	return o.runOne(ctx, SourceHL7, o.hl7)
}

// ImportFromCSVSource runs the CSV source once.
func (o *Orchestrator) ImportFromCSVSource(ctx context.Context) RunResult {
	return o.runOne(ctx, SourceCSV, o.csv)
}

// ImportAll runs every enabled source concurrently. It reports success only
// when each of them succeeded.
func (o *Orchestrator) ImportAll(ctx context.Context) RunResult {
	var g errgroup.Group
	enabled := 0
	for _, im := range o.Importers() {
		enabled++
		g.Go(func() error {
			return im.Run(ctx).Err
		})
	}
	if enabled == 0 {
		slog.Warn("manual import requested but no source is enabled")
		return RunError
	}
	if err := g.Wait(); err != nil {
		return RunError
	}
	return RunSuccess
}

// Import runs the source called name: "hl7", "csv" or "all".
func (o *Orchestrator) Import(ctx context.Context, name string) (RunResult, error) {
	switch name {
	case SourceHL7:
		return o.ImportFromHL7Source(ctx), nil
	case SourceCSV:
		return o.ImportFromCSVSource(ctx), nil
	case "all":
		return o.ImportAll(ctx), nil
	default:
		return RunError, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
}

// Start registers one daily trigger per enabled source and returns the
// handles. The triggers stop when ctx is cancelled or on Trigger.Stop.
func (o *Orchestrator) Start(ctx context.Context) []*Trigger {
	var triggers []*Trigger
	if o.hl7 != nil {
		triggers = append(triggers, StartDailyTrigger(ctx, SourceHL7, o.hl7At.At, o.hl7At.Location, o.ImportFromHL7Source))
	}
	if o.csv != nil {
		triggers = append(triggers, StartDailyTrigger(ctx, SourceCSV, o.csvAt.At, o.csvAt.Location, o.ImportFromCSVSource))
	}
	return triggers
}

// Importers returns the enabled importers.
func (o *Orchestrator) Importers() []*Importer {
	var out []*Importer
	for _, im := range []*Importer{o.hl7, o.csv} {
		if im != nil {
			out = append(out, im)
		}
	}
	return out
}

// Running returns the names of the sources with a run in progress.
func (o *Orchestrator) Running() []string {
	running := []string{}
	for _, im := range o.Importers() {
		if im.Running() {
			running = append(running, im.Name())
		}
	}
	return running
}

func (o *Orchestrator) runOne(ctx context.Context, name string, im *Importer) RunResult {
	if im == nil {
		slog.Warn("import requested for disabled source",
			"source", name,
			"error_code", ErrorCode(ErrSourceDisabled),
		)
		return RunError
	}
	return im.Run(ctx).Result()
}
