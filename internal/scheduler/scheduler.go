// Package scheduler drains a run in fixed-size chunks through the concurrency gate.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/avail-checker/internal/gate"
	"github.com/yourorg/avail-checker/internal/metrics"
	"github.com/yourorg/avail-checker/internal/types"
)

// ErrBudgetExceeded is returned by Drain when the run outlives Config.RunBudget.
var ErrBudgetExceeded = errors.New("processing timeout exceeded")

// Checker resolves one domain. It must not fail; failures come back as outcomes.
type Checker interface {
	Check(ctx context.Context, domain string) types.CheckOutcome
}

// Source is the run being drained. Take hands out the next chunk and reports
// false once nothing is left (or the run was discarded). Record receives every
// dispatched item exactly once. ChunkDone marks a chunk boundary.
type Source interface {
	Take(n int) ([]types.DomainItem, bool)
	Record(item types.DomainItem, out types.CheckOutcome)
	ChunkDone()
}

type Config struct {
	ChunkSize  int
	ChunkPause time.Duration // backpressure between chunks
	RunBudget  time.Duration // wall-clock limit per Drain; 0 disables
}

func DefaultConfig() Config {
	return Config{ChunkSize: 25, ChunkPause: 50 * time.Millisecond, RunBudget: 30 * time.Minute}
}

type Scheduler struct {
	gate    *gate.Gate
	checker Checker
	cfg     Config
	log     *zap.Logger
}

func New(g *gate.Gate, c Checker, cfg Config, log *zap.Logger) *Scheduler {
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{gate: g, checker: c, cfg: cfg, log: log}
}

func (s *Scheduler) Config() Config { return s.cfg }

// Drain processes src chunk by chunk until it is exhausted. Chunks never
// overlap, so at most gate width checks are in flight. The budget stops
// further dispatch only; checks already running finish on their own timeout.
// A chunk taken after the budget ran out is abandoned, never recorded.
func (s *Scheduler) Drain(ctx context.Context, src Source) error {
	start := time.Now()
	chunks := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, ok := src.Take(s.cfg.ChunkSize)
		if !ok {
			return nil
		}
		// Only work still waiting counts as truncated; a run whose last chunk
		// settled past the budget has completed.
		if s.cfg.RunBudget > 0 && time.Since(start) >= s.cfg.RunBudget {
			s.log.Warn("run budget exceeded",
				zap.Duration("budget", s.cfg.RunBudget),
				zap.Int("chunks", chunks),
				zap.Int("abandoned_chunk", len(chunk)),
			)
			return ErrBudgetExceeded
		}
		chunks++
		metrics.Chunks.Inc()
		s.runChunk(ctx, src, chunk)
		src.ChunkDone()
		s.log.Debug("chunk settled", zap.Int("chunk", chunks), zap.Int("size", len(chunk)))

		if s.cfg.ChunkPause > 0 {
			t := time.NewTimer(s.cfg.ChunkPause)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			}
		}
	}
}

// runChunk dispatches every item and waits for all of them to settle.
func (s *Scheduler) runChunk(ctx context.Context, src Source, chunk []types.DomainItem) {
	var wg sync.WaitGroup
	wg.Add(len(chunk))
	for _, item := range chunk {
		go func(item types.DomainItem) {
			defer wg.Done()
			src.Record(item, s.checkOne(ctx, item))
		}(item)
	}
	wg.Wait()
}

func (s *Scheduler) checkOne(ctx context.Context, item types.DomainItem) (out types.CheckOutcome) {
	out = types.CheckOutcome{Domain: item.Domain, Error: true}
	release, err := s.gate.Acquire(ctx)
	if err != nil {
		s.log.Debug("gate acquire aborted", zap.String("domain", item.Domain), zap.Error(err))
		return out
	}
	defer release()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("check panicked", zap.String("domain", item.Domain), zap.Error(fmt.Errorf("%v", r)))
			out = types.CheckOutcome{Domain: item.Domain, Error: true}
		}
	}()
	return s.checker.Check(ctx, item.Domain)
}
