package queue

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/avail-checker/internal/types"
)

// Run is the handle for one drain, returned by AddDomains. Batches added while
// the drain is running join the same Run.
type Run struct {
	id        string
	startedAt time.Time
	done      chan struct{}
	settled   chan struct{} // closed after the post-run cache purge
	once      sync.Once
	err       error

	// guarded by Queue.mu
	status    types.RunStatus
	total     int
	processed int
	available []types.DomainItem
}

func newRun(now time.Time) *Run {
	return &Run{id: uuid.NewString(), startedAt: now, done: make(chan struct{}), settled: make(chan struct{})}
}

func (r *Run) ID() string { return r.id }

func (r *Run) StartedAt() time.Time { return r.startedAt }

// Done is closed once the run has finished, timed out or been cleared.
func (r *Run) Done() <-chan struct{} { return r.done }

// Err is nil while running and for completed runs; ErrBudgetExceeded,
// ErrRunCleared or the context error otherwise.
func (r *Run) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Status is empty until the run is done.
func (r *Run) Status() types.RunStatus {
	select {
	case <-r.done:
		return r.status
	default:
		return ""
	}
}

// Wait blocks until the run is done or ctx ends.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Run) close(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

func (r *Run) summaryLocked(finished time.Time, err error) types.RunSummary {
	return types.RunSummary{
		ID:         r.id,
		Status:     r.status,
		StartedAt:  r.startedAt,
		FinishedAt: finished,
		Total:      r.total,
		Processed:  r.processed,
		Available:  slices.Clone(r.available),
		Err:        err,
	}
}

// source is the scheduler's view of one run. The queue's active run pointer
// is the generation marker: once it no longer points at this run, Take stops
// handing out work and Record drops late outcomes.
type source struct {
	q   *Queue
	run *Run
}

func (s *source) Take(n int) ([]types.DomainItem, bool) {
	q := s.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.run != s.run {
		return nil, false
	}
	if len(q.pending) == 0 {
		// Nothing in flight between chunks, so the run is over.
		q.processing = false
		q.run = nil
		return nil, false
	}
	n = min(n, len(q.pending))
	chunk := slices.Clone(q.pending[:n])
	q.pending = q.pending[n:]
	if len(q.pending) == 0 {
		q.pending = nil
	}
	return chunk, true
}

func (s *source) Record(item types.DomainItem, out types.CheckOutcome) {
	q := s.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.run != s.run {
		return
	}
	q.processed++
	s.run.processed++
	if out.Available && !out.Error {
		q.available = append(q.available, item)
		s.run.available = append(s.run.available, item)
	}
	if time.Since(q.lastEmit) >= q.interval {
		q.emitLocked(q.eventLocked(types.EventProgress, s.run))
	}
}

func (s *source) ChunkDone() {
	q := s.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.run == s.run {
		q.emitLocked(q.eventLocked(types.EventProgress, s.run))
	}
}
