package core

import (
	"sync"
	"time"
)

// DefaultHistorySize is how many run entries RunHistory keeps.
const DefaultHistorySize = 100

// RunEntry is the log line of one finished run.
type RunEntry struct {
	RunID      string    `json:"run_id"`
	Source     string    `json:"source"`
	Trigger    string    `json:"trigger"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Files      int       `json:"files"`
	Imported   int       `json:"imported"`
	Duplicates int       `json:"duplicates"`
	Failed     int       `json:"failed"`
	Deleted    int       `json:"deleted"`
	Result     RunResult `json:"result"`
	ErrorCode  string    `json:"error_code,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// RunHistory is an in-memory log of the most recent runs. It implements
// RunObserver and is safe for concurrent use.
type RunHistory struct {
	mu   sync.Mutex
	runs []RunEntry // ring buffer, next is the write position
	next int
	full bool
}

// NewRunHistory keeps the last size runs; size <= 0 uses DefaultHistorySize.
func NewRunHistory(size int) *RunHistory {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &RunHistory{runs: make([]RunEntry, size)}
}

// FileProcessed implements RunObserver.
func (h *RunHistory) FileProcessed(string, *ImportItem) {}

// RunFinished implements RunObserver.
func (h *RunHistory) RunFinished(source string, r RunReport) {
	e := RunEntry{
		RunID:      r.RunID,
		Source:     source,
		Trigger:    r.Trigger,
		StartedAt:  r.StartedAt,
		DurationMs: r.Duration.Milliseconds(),
		Files:      r.Files,
		Imported:   r.Imported,
		Duplicates: r.Duplicates,
		Failed:     r.Failed,
		Deleted:    r.Deleted,
		Result:     r.Result(),
	}
	if r.Err != nil {
		e.ErrorCode = ErrorCode(r.Err)
		e.Error = r.Err.Error()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs[h.next] = e
	h.next = (h.next + 1) % len(h.runs)
	if h.next == 0 {
		h.full = true
	}
}

// Recent returns up to limit entries, newest first. An empty source matches
// every source; limit <= 0 returns everything kept.
func (h *RunHistory) Recent(source string, limit int) []RunEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.next
	if h.full {
		n = len(h.runs)
	}

	out := make([]RunEntry, 0, n)
	for i := 1; i <= n; i++ {
		e := h.runs[(h.next-i+len(h.runs))%len(h.runs)]
		if source != "" && e.Source != source {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Observers fans run accounting out to several observers.
func Observers(obs ...RunObserver) RunObserver {
	return multiObserver(obs)
}

type multiObserver []RunObserver

func (m multiObserver) FileProcessed(source string, item *ImportItem) {
	for _, o := range m {
		o.FileProcessed(source, item)
	}
}

func (m multiObserver) RunFinished(source string, report RunReport) {
	for _, o := range m {
		o.RunFinished(source, report)
	}
}
