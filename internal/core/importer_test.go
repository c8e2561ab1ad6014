package core

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func newTestImporter(src *memSource, repo *memRepo, opts ImporterOptions) *Importer {
	return NewImporter("test", src.opener(), lineParser{}, NewResultStore(repo), opts)
}

func TestImporter_CleanupSelectivity(t *testing.T) {
	repo := newMemRepo()
	repo.seed(LabResult{ID: "DONE-1", Status: StatusAnalyzed})
	repo.seed(LabResult{ID: "REG-1", Status: StatusNew})
	repo.failObservation = "BOOM"

	src := newMemSource(map[string]string{
		"1-new.csv":        "NEW-1;IgG",
		"2-registered.csv": "REG-1;IgG;IgM",
		"3-duplicate.csv":  "DONE-1;IgG",
		"4-unparsable.csv": "!",
		"5-missing-id.csv": "NEW-2;IgG\n-",
		"6-db-error.csv":   "NEW-3;BOOM",
		"7-empty.csv":      "",
	})

	report := newTestImporter(src, repo, ImporterOptions{DeleteImported: true}).Run(context.Background())

	if report.Err != nil {
		t.Fatalf("run error: %v", report.Err)
	}
	if report.Result() != RunSuccess {
		t.Errorf("Result = %q, want success", report.Result())
	}

	wantDeleted := []string{"1-new.csv", "2-registered.csv"}
	if !reflect.DeepEqual(src.deleted, wantDeleted) {
		t.Errorf("deleted = %v, want %v", src.deleted, wantDeleted)
	}
	for _, kept := range []string{"3-duplicate.csv", "4-unparsable.csv", "5-missing-id.csv", "6-db-error.csv", "7-empty.csv"} {
		if !src.exists(kept) {
			t.Errorf("%s was removed from the source", kept)
		}
	}

	if report.Files != 7 || report.Imported != 2 || report.Duplicates != 1 || report.Failed != 4 || report.Deleted != 2 {
		t.Errorf("report = %+v", report)
	}
	if _, ok := repo.get("NEW-2"); ok {
		t.Error("NEW-2 persisted from a file with a missing sample id")
	}
	if _, ok := repo.get("NEW-3"); ok {
		t.Error("NEW-3 persisted despite failed transaction")
	}
	if !src.closed {
		t.Error("source not closed after run")
	}
}

func TestImporter_OneFileAtATime(t *testing.T) {
	src := newMemSource(map[string]string{
		"a.csv": "A-1;IgG",
		"b.csv": "B-1;IgG",
		"c.csv": "C-1;IgG",
	})

	report := newTestImporter(src, newMemRepo(), ImporterOptions{DeleteImported: true}).Run(context.Background())
	if report.Err != nil {
		t.Fatalf("run error: %v", report.Err)
	}

	want := []string{"open a.csv", "delete a.csv", "open b.csv", "delete b.csv", "open c.csv", "delete c.csv"}
	if !reflect.DeepEqual(src.events, want) {
		t.Errorf("events = %v, want %v", src.events, want)
	}
}

func TestImporter_DeleteDisabled(t *testing.T) {
	src := newMemSource(map[string]string{"a.csv": "A-1;IgG"})
	repo := newMemRepo()

	report := newTestImporter(src, repo, ImporterOptions{DeleteImported: false}).Run(context.Background())
	if report.Err != nil {
		t.Fatalf("run error: %v", report.Err)
	}
	if report.Imported != 1 || report.Deleted != 0 {
		t.Errorf("report = %+v", report)
	}
	if !src.exists("a.csv") {
		t.Error("file deleted although deletion is disabled")
	}
}

func TestImporter_RunLevelFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(src *memSource) SourceOpener
	}{
		{
			name: "connect",
			setup: func(src *memSource) SourceOpener {
				return func(context.Context) (Source, error) {
					return nil, errors.New("source connect: dial tcp 10.0.0.1:22: connection refused")
				}
			},
		},
		{
			name: "list",
			setup: func(src *memSource) SourceOpener {
				src.listErr = errors.New("source list: permission denied")
				return src.opener()
			},
		},
		{
			name: "read",
			setup: func(src *memSource) SourceOpener {
				src.openErr["b.csv"] = errors.New("connection lost")
				return src.opener()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newMemSource(map[string]string{
				"a.csv": "A-1;IgG",
				"b.csv": "B-1;IgG",
				"c.csv": "C-1;IgG",
			})
			repo := newMemRepo()
			im := NewImporter("test", tt.setup(src), lineParser{}, NewResultStore(repo), ImporterOptions{DeleteImported: true})

			report := im.Run(context.Background())
			if report.Err == nil {
				t.Fatal("expected run-level error")
			}
			if report.Result() != RunError {
				t.Errorf("Result = %q, want error", report.Result())
			}
			if _, ok := repo.get("C-1"); ok {
				t.Error("files after the failure were processed")
			}
			for _, d := range src.deleted {
				if d != "a.csv" {
					t.Errorf("unexpected delete of %s", d)
				}
			}
		})
	}
}

func TestImporter_OversizedFileIsSoftFailure(t *testing.T) {
	src := newMemSource(map[string]string{
		"a.csv": "A-1;" + strings.Repeat("x", 100),
		"b.csv": "B-1;IgG",
	})
	repo := newMemRepo()

	report := newTestImporter(src, repo, ImporterOptions{MaxFileSize: 50, DeleteImported: true}).Run(context.Background())
	if report.Err != nil {
		t.Fatalf("run error: %v", report.Err)
	}
	if report.Failed != 1 || report.Imported != 1 {
		t.Errorf("report = %+v", report)
	}
	if !src.exists("a.csv") {
		t.Error("oversized file removed")
	}
	if _, ok := repo.get("A-1"); ok {
		t.Error("oversized file was imported")
	}
}

func TestImporter_DeleteFailureIsSoft(t *testing.T) {
	src := newMemSource(map[string]string{
		"a.csv": "A-1;IgG",
		"b.csv": "B-1;IgG",
	})
	src.deleteErr["a.csv"] = errors.New("source delete a.csv: permission denied")

	report := newTestImporter(src, newMemRepo(), ImporterOptions{DeleteImported: true}).Run(context.Background())
	if report.Err != nil {
		t.Fatalf("run error: %v", report.Err)
	}
	if report.Imported != 2 || report.Deleted != 1 {
		t.Errorf("report = %+v", report)
	}
	if src.exists("b.csv") {
		t.Error("b.csv should still be deleted after a.csv failed")
	}
}

func TestImporter_OverlappingRun(t *testing.T) {
	src := newMemSource(map[string]string{"a.csv": "A-1;IgG"})
	im := newTestImporter(src, newMemRepo(), ImporterOptions{RunWait: 50 * time.Millisecond})

	// Hold the run slot as a concurrent run would.
	if err := im.limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !im.Running() {
		t.Error("Running = false while the slot is held")
	}

	report := im.Run(context.Background())
	if !errors.Is(report.Err, ErrRunInProgress) {
		t.Errorf("Err = %v, want ErrRunInProgress", report.Err)
	}
	if len(src.events) != 0 {
		t.Errorf("source touched by a rejected run: %v", src.events)
	}

	im.limiter.Release()
	if report := im.Run(context.Background()); report.Err != nil {
		t.Errorf("run after release: %v", report.Err)
	}
}

func TestImporter_Observer(t *testing.T) {
	src := newMemSource(map[string]string{
		"a.csv": "A-1;IgG",
		"b.csv": "!",
	})
	obs := &recordingObserver{}
	im := newTestImporter(src, newMemRepo(), ImporterOptions{DeleteImported: true, Observer: obs})

	ctx := ContextWithTrigger(context.Background(), TriggerCLI)
	im.Run(ctx)

	want := []Outcome{OutcomeImportedNewUnassigned, OutcomeNone}
	if !reflect.DeepEqual(obs.files, want) {
		t.Errorf("file outcomes = %v, want %v", obs.files, want)
	}
	if len(obs.reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(obs.reports))
	}
	r := obs.reports[0]
	if r.Trigger != TriggerCLI || r.Source != "test" || r.RunID == "" {
		t.Errorf("report = %+v", r)
	}
}

func TestImporter_InFlightBound(t *testing.T) {
	files := map[string]string{}
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		files[name+".csv"] = strings.ToUpper(name) + "-1;IgG"
	}
	src := newMemSource(files)
	repo := newMemRepo()

	report := newTestImporter(src, repo, ImporterOptions{InFlight: 3, DeleteImported: true}).Run(context.Background())
	if report.Err != nil {
		t.Fatalf("run error: %v", report.Err)
	}
	if report.Imported != 6 || report.Deleted != 6 {
		t.Errorf("report = %+v", report)
	}
}

func TestImporter_DeadlineAfterCommitStillDeletes(t *testing.T) {
	repo := newMemRepo()
	repo.commitDelay = 100 * time.Millisecond
	src := newMemSource(map[string]string{
		"a.csv": "A-1;IgG",
		"b.csv": "B-1;IgG",
	})
	opts := ImporterOptions{DeleteImported: true, RunTimeout: 30 * time.Millisecond}

	report := newTestImporter(src, repo, opts).Run(context.Background())

	if report.Result() != RunError || !errors.Is(report.Err, context.DeadlineExceeded) {
		t.Fatalf("run = %s (%v), want error from the deadline", report.Result(), report.Err)
	}
	if res, ok := repo.get("A-1"); !ok || res.Status != StatusAnalyzed {
		t.Fatalf("A-1 not committed: %+v", res)
	}
	if src.exists("a.csv") {
		t.Error("a.csv committed but left on the source")
	}
	if report.Files != 1 || report.Imported != 1 || report.Deleted != 1 {
		t.Errorf("report = %+v, want the committed file counted", report)
	}
	if !src.exists("b.csv") {
		t.Error("b.csv was admitted after the deadline")
	}

	repo.commitDelay = 0
	report = newTestImporter(src, repo, ImporterOptions{DeleteImported: true}).Run(context.Background())
	if report.Result() != RunSuccess || report.Imported != 1 || report.Duplicates != 0 {
		t.Errorf("second run = %+v", report)
	}
	if src.exists("b.csv") {
		t.Error("b.csv not imported on the second run")
	}
}

func TestImporter_CancelStopsReading(t *testing.T) {
	repo := newMemRepo()
	repo.commitDelay = 50 * time.Millisecond
	src := newMemSource(map[string]string{
		"a.csv": "A-1;IgG",
		"b.csv": "B-1;IgG",
	})
	im := newTestImporter(src, repo, ImporterOptions{DeleteImported: true})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	report := im.Run(ctx)

	if !errors.Is(report.Err, context.Canceled) {
		t.Fatalf("Err = %v, want context.Canceled", report.Err)
	}
	if src.exists("a.csv") || !src.exists("b.csv") {
		t.Errorf("deleted = %v, want only the file admitted before cancellation", src.deleted)
	}
	if im.Running() {
		t.Error("run still holds the source after returning")
	}
}
