package core

// scheduler.go provides the daily triggers that start import runs.
//
// A Trigger fires once a day at a fixed wall-clock time in a configured
// location. It is long-running and context-aware for graceful shutdown. It
// logs the outcome of each run but never stops because a run failed; the next
// firing simply tries again.

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH:MM" (24-hour).
func ParseClockTime(s string) (ClockTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return ClockTime{}, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return ClockTime{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return ClockTime{}, fmt.Errorf("invalid minute in %q", s)
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Next returns the first occurrence of c strictly after now, in loc.
func (c ClockTime) Next(now time.Time, loc *time.Location) time.Time {
	now = now.In(loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), c.Hour, c.Minute, 0, 0, loc)
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, c.Hour, c.Minute, 0, 0, loc)
	}
	return next
}

// Trigger is the cancellable handle of one daily schedule.
type Trigger struct {
	name string
	at   ClockTime
	loc  *time.Location
	job  func(ctx context.Context) RunResult

	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	nextRun time.Time
}

// StartDailyTrigger runs job every day at at in loc until ctx is cancelled or
// Stop is called.
func StartDailyTrigger(ctx context.Context, name string, at ClockTime, loc *time.Location, job func(ctx context.Context) RunResult) *Trigger {
	if loc == nil {
		loc = time.Local
	}
	ctx, cancel := context.WithCancel(ctx)
	t := &Trigger{
		name:    name,
		at:      at,
		loc:     loc,
		job:     job,
		nextRun: at.Next(time.Now(), loc),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go t.loop(ctx)
	return t
}

// Name returns the source the trigger runs.
func (t *Trigger) Name() string { return t.name }

// NextRun returns the time of the next firing.
func (t *Trigger) NextRun() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextRun
}

// Stop cancels the trigger and waits for a firing in progress to return.
func (t *Trigger) Stop() {
	t.cancel()
	<-t.done
}

func (t *Trigger) loop(ctx context.Context) {
	defer close(t.done)

	slog.Info("import trigger started", "source", t.name, "at", t.at.String(), "timezone", t.loc.String())

	for {
		next := t.NextRun()
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("import trigger stopped", "source", t.name)
			return
		case <-timer.C:
			result := t.job(ContextWithTrigger(ctx, TriggerSchedule))
			slog.Info("scheduled import finished", "source", t.name, "result", string(result))

			t.mu.Lock()
			t.nextRun = t.at.Next(time.Now(), t.loc)
			t.mu.Unlock()
		}
	}
}
