package core

import (
	"context"
	"sync"
	"time"
)

// Limiter bounds how many holders may be active at once. The orchestrator
// uses a single-slot Limiter per source so runs never overlap; the pipeline
// uses one to cap the files in flight.
type Limiter struct {
	semaphore  chan struct{}
	maxWait    time.Duration
	timeoutErr error

	mu     sync.RWMutex
	active int
}

// NewLimiter creates a limiter with max slots. Acquire gives up after maxWait
// and returns timeoutErr; a maxWait of zero waits until ctx is done.
func NewLimiter(max int, maxWait time.Duration, timeoutErr error) *Limiter {
	if max <= 0 {
		max = 1
	}
	return &Limiter{
		semaphore:  make(chan struct{}, max),
		maxWait:    maxWait,
		timeoutErr: timeoutErr,
	}
}

// NewRunLimiter creates the single-slot limiter guarding one source's runs.
func NewRunLimiter(maxWait time.Duration) *Limiter {
	return NewLimiter(1, maxWait, ErrRunInProgress)
}

// Acquire takes a slot, blocking until one frees up, the wait expires or ctx
// is cancelled. Callers must Release after a nil return.
func (l *Limiter) Acquire(ctx context.Context) error {
	var timeout <-chan time.Time
	if l.maxWait > 0 {
		timer := time.NewTimer(l.maxWait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return l.timeoutErr
	}
}

// Release returns a slot taken by Acquire.
func (l *Limiter) Release() {
	select {
	case <-l.semaphore:
		l.mu.Lock()
		l.active--
		l.mu.Unlock()
	default:
	}
}

// ActiveCount returns the number of slots in use.
func (l *Limiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// WaitForDrain blocks until no slot is in use or ctx is done. Used during
// shutdown to let running imports finish.
func (l *Limiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
