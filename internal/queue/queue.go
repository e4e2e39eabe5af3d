// Package queue owns the run state: pending work, accumulated results and
// counters, and the single drain that processes them.
package queue

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/avail-checker/internal/metrics"
	"github.com/yourorg/avail-checker/internal/scheduler"
	"github.com/yourorg/avail-checker/internal/types"
)

var (
	ErrEmptyBatch = errors.New("no domains to check")
	ErrRunCleared = errors.New("run cleared")
)

// DefaultProgressInterval throttles push events between chunk boundaries.
const DefaultProgressInterval = 500 * time.Millisecond

// Drainer processes a run to exhaustion; *scheduler.Scheduler satisfies it.
type Drainer interface {
	Drain(ctx context.Context, src scheduler.Source) error
}

// Resetter forgets memoized outcomes at the end of a run.
type Resetter interface {
	Reset(ctx context.Context) error
}

type (
	StartHook      func(ctx context.Context, runID string, startedAt time.Time)
	CompletionHook func(ctx context.Context, sum types.RunSummary)
)

type Option func(*Queue)

func WithLogger(l *zap.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.log = l
		}
	}
}

// WithProgressInterval sets the minimum gap between progress events inside a
// chunk; 0 emits on every processed item. Chunk boundaries always emit.
func WithProgressInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d >= 0 {
			q.interval = d
		}
	}
}

func WithResetter(r Resetter) Option { return func(q *Queue) { q.resetter = r } }

func WithStartHook(h StartHook) Option {
	return func(q *Queue) { q.onStart = append(q.onStart, h) }
}

func WithCompletionHook(h CompletionHook) Option {
	return func(q *Queue) { q.onDone = append(q.onDone, h) }
}

// WithContext sets the context drains run under; cancelling it stops dispatch.
func WithContext(ctx context.Context) Option {
	return func(q *Queue) {
		if ctx != nil {
			q.base = ctx
		}
	}
}

type Queue struct {
	drainer  Drainer
	log      *zap.Logger
	interval time.Duration
	resetter Resetter
	onStart  []StartHook
	onDone   []CompletionHook
	base     context.Context

	mu         sync.Mutex
	pending    []types.DomainItem
	available  []types.DomainItem
	total      int
	processed  int
	processing bool
	run        *Run // non-nil exactly while processing
	lastEmit   time.Time
	subs       map[int]chan types.Event
	nextSub    int

	// settled is closed once the cache holds nothing from earlier runs. A new
	// run waits on it before dispatching.
	settled chan struct{}
}

func New(d Drainer, opts ...Option) *Queue {
	settled := make(chan struct{})
	close(settled)
	q := &Queue{
		settled:  settled,
		drainer:  d,
		log:      zap.NewNop(),
		interval: DefaultProgressInterval,
		base:     context.Background(),
		subs:     make(map[int]chan types.Event),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// AddDomains appends items to the pending queue and starts a drain when none
// is running. While a drain is running the items join it and its Run is returned.
func (q *Queue) AddDomains(items []types.DomainItem) (*Run, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}
	q.mu.Lock()
	q.pending = append(q.pending, items...)
	q.total += len(items)
	if q.processing {
		r := q.run
		r.total += len(items)
		q.mu.Unlock()
		q.log.Info("domains joined running drain", zap.String("run_id", r.id), zap.Int("added", len(items)))
		return r, nil
	}
	r := newRun(time.Now())
	r.total = len(items)
	q.run = r
	q.processing = true
	q.lastEmit = time.Time{}
	prev := q.settled
	q.settled = r.settled
	q.mu.Unlock()

	q.log.Info("run started", zap.String("run_id", r.id), zap.Int("domains", len(items)))
	go q.drain(r, prev)
	return r, nil
}

// drain waits for the previous run's cache purge, so outcomes memoized by
// this run are never wiped by it.
func (q *Queue) drain(r *Run, prev <-chan struct{}) {
	<-prev
	hookCtx := context.WithoutCancel(q.base)
	for _, h := range q.onStart {
		h(hookCtx, r.id, r.startedAt)
	}
	err := q.drainer.Drain(q.base, &source{q: q, run: r})
	q.finish(r, err)
}

// finish settles a run after its drain returned.
func (q *Queue) finish(r *Run, err error) {
	now := time.Now()
	q.mu.Lock()
	if q.run == r {
		// Dispatch stopped early; whatever was not taken is abandoned.
		q.pending = nil
		q.processing = false
		q.run = nil
	}
	var runErr error
	switch {
	case r.status == types.RunCleared:
		runErr = ErrRunCleared
	case err == nil:
		r.status = types.RunCompleted
	case errors.Is(err, scheduler.ErrBudgetExceeded):
		r.status = types.RunTimedOut
		runErr = err
	default:
		r.status = types.RunCanceled
		runErr = err
	}
	sum := r.summaryLocked(now, runErr)
	switch r.status {
	case types.RunCompleted:
		q.emitLocked(q.eventLocked(types.EventComplete, r))
	case types.RunTimedOut, types.RunCanceled:
		ev := q.eventLocked(types.EventPartial, r)
		ev.Partial = &types.PartialResult{
			Results:   slices.Clone(q.available),
			Processed: q.processed,
			Total:     q.total,
			Available: len(q.available),
			Error:     err.Error(),
		}
		q.emitLocked(ev)
	}
	q.mu.Unlock()

	// Every check of this run has settled, so the purge also drops what a
	// cleared run wrote after Clear.
	q.reset()
	close(r.settled)

	metrics.Runs.WithLabelValues(string(r.status)).Inc()
	metrics.RunDuration.Observe(now.Sub(r.startedAt).Seconds())
	q.log.Info("run finished",
		zap.String("run_id", r.id),
		zap.String("status", string(r.status)),
		zap.Int("total", sum.Total),
		zap.Int("processed", sum.Processed),
		zap.Int("available", len(sum.Available)),
		zap.Duration("elapsed", now.Sub(r.startedAt)),
	)

	hookCtx := context.WithoutCancel(q.base)
	for _, h := range q.onDone {
		h(hookCtx, sum)
	}
	r.close(runErr)
}

func (q *Queue) reset() {
	if q.resetter == nil {
		return
	}
	if err := q.resetter.Reset(context.WithoutCancel(q.base)); err != nil {
		q.log.Warn("cache reset failed", zap.Error(err))
	}
}

// Progress never waits on in-flight checks.
func (q *Queue) Progress() types.Progress {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.progressLocked()
}

// Available returns a copy of the accumulated available set in completion order.
func (q *Queue) Available() []types.DomainItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.available)
}

// Clear resets all state, including mid-run. In-flight checks are not
// cancelled; their outcomes are discarded when they land, and the cleared
// run's drain purges the cache once they have. The next run waits for that.
func (q *Queue) Clear() {
	q.mu.Lock()
	old := q.run
	var prev <-chan struct{}
	var purged chan struct{}
	if old != nil {
		old.status = types.RunCleared
	} else {
		prev = q.settled
		purged = make(chan struct{})
		q.settled = purged
	}
	q.run = nil
	q.pending = nil
	q.available = nil
	q.total = 0
	q.processed = 0
	q.processing = false
	q.emitLocked(q.eventLocked(types.EventProgress, nil))
	q.mu.Unlock()

	if old != nil {
		old.close(ErrRunCleared)
		q.log.Info("run cleared", zap.String("run_id", old.id))
		return
	}
	go func() {
		<-prev
		q.reset()
		close(purged)
	}()
}

func (q *Queue) progressLocked() types.Progress {
	return types.Progress{
		Total:      q.total,
		Processed:  q.processed,
		Available:  len(q.available),
		Processing: q.processing,
	}
}
