package core

// pipeline.go wires the four stages of one import run.
//
// Items flow reader -> parser -> store -> cleanup over unbuffered channels.
// The reader takes an in-flight slot before fetching a file; the cleanup stage
// releases it when the file retires. With one slot this reproduces strict
// file-at-a-time processing while every stage still runs in its own goroutine.
//
// Only the reader observes cancellation of the run context. An item that was
// read is parsed, stored and cleaned up on a context without cancellation, so
// a file committed at the deadline is still deleted and counted.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/labimport/internal/logging"
	"golang.org/x/sync/errgroup"
)

type pipeline struct {
	name           string
	source         Source
	parser         Parser
	store          *ResultStore
	inFlight       *Limiter
	maxFileSize    int64
	deleteImported bool
	observer       RunObserver

	// report is written only by the cleanup stage.
	report *RunReport
}

// run processes files in listing order. It returns a run-level error only;
// per-file failures are logged and counted in the report.
func (p *pipeline) run(ctx context.Context, files []RemoteFile) error {
	read := make(chan *ImportItem)
	parsed := make(chan *ImportItem)
	stored := make(chan *ImportItem)

	work := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.Go(func() error { return p.readStage(ctx, files, read) })
	g.Go(func() error { return p.parseStage(work, read, parsed) })
	g.Go(func() error { return p.storeStage(work, parsed, stored) })
	g.Go(func() error { return p.cleanupStage(work, stored) })
	return g.Wait()
}

// send hands item to the next stage. If ctx ends first the item is dropped and
// its slot returned.
func send(ctx context.Context, out chan<- *ImportItem, item *ImportItem) error {
	select {
	case out <- item:
		return nil
	case <-ctx.Done():
		item.retire()
		return ctx.Err()
	}
}

func (p *pipeline) readStage(ctx context.Context, files []RemoteFile, out chan<- *ImportItem) error {
	defer close(out)

	for _, f := range files {
		if err := p.inFlight.Acquire(ctx); err != nil {
			return err
		}
		item := &ImportItem{Path: f.Path, release: p.inFlight.Release}

		if p.maxFileSize > 0 && f.Size > p.maxFileSize {
			item.ParseErr = fmt.Errorf("read %s (%d bytes): %w", f.Path, f.Size, ErrFileTooLarge)
		} else {
			content, err := p.fetch(ctx, f.Path)
			switch {
			case err == nil:
				item.Content = content
			case errors.Is(err, ErrFileTooLarge):
				item.ParseErr = err
			default:
				item.retire()
				return err
			}
		}

		if err := send(ctx, out, item); err != nil {
			return err
		}
	}
	return nil
}

func (p *pipeline) fetch(ctx context.Context, path string) ([]byte, error) {
	rc, err := p.source.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("source read %s: %w", path, err)
	}
	defer rc.Close()

	content, err := readLimited(rc, p.maxFileSize)
	if err != nil {
		return nil, fmt.Errorf("source read %s: %w", path, err)
	}
	return content, nil
}

func (p *pipeline) parseStage(ctx context.Context, in <-chan *ImportItem, out chan<- *ImportItem) error {
	defer close(out)

	for item := range in {
		if item.ParseErr == nil {
			results, err := p.parser.Parse(item.Path, item.Content)
			if err != nil {
				item.ParseErr = err
			} else {
				item.Results = results
			}
		}
		// Content is not needed past this stage.
		item.Content = nil

		if item.ParseErr != nil {
			logging.FromContext(ctx).Warn("file not parsed",
				"path", item.Path,
				"format", p.parser.Format(),
				"error", item.ParseErr,
				"error_code", ErrorCode(item.ParseErr),
			)
		}

		if err := send(ctx, out, item); err != nil {
			return err
		}
	}
	return nil
}

func (p *pipeline) storeStage(ctx context.Context, in <-chan *ImportItem, out chan<- *ImportItem) error {
	defer close(out)

	for item := range in {
		if item.ParseErr == nil {
			start := time.Now()
			err := p.store.Store(ctx, item)
			logger := logging.WithFields(ctx,
				"path", item.Path,
				"sample_ids", item.SampleIDs(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			switch {
			case err != nil:
				item.StoreErr = err
				logger.Error("file not stored",
					"error", err,
					"error_code", ErrorCode(err),
				)
			case item.Outcome.Imported():
				logger.Info("file imported", "outcome", item.Outcome.String())
			default:
				logger.Info("file skipped, results already analyzed", "outcome", item.Outcome.String())
			}
		}

		if err := send(ctx, out, item); err != nil {
			return err
		}
	}
	return nil
}

func (p *pipeline) cleanupStage(ctx context.Context, in <-chan *ImportItem) error {
	for item := range in {
		if item.Outcome.Imported() && p.deleteImported {
			if err := p.source.Delete(ctx, item.Path); err != nil {
				item.DeleteErr = err
				logging.FromContext(ctx).Warn("remote delete failed",
					"path", item.Path,
					"error", err,
					"error_code", ErrorCode(err),
				)
			} else {
				item.Deleted = true
				logging.FromContext(ctx).Debug("remote file deleted", "path", item.Path)
			}
		}

		p.report.add(item)
		p.observer.FileProcessed(p.name, item)
		item.retire()
	}
	return nil
}
