// Package app wires the check engine from configuration. Both binaries build
// on it: the HTTP server and the one-shot file checker.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/avail-checker/internal/cache"
	"github.com/yourorg/avail-checker/internal/checker"
	"github.com/yourorg/avail-checker/internal/config"
	"github.com/yourorg/avail-checker/internal/db"
	"github.com/yourorg/avail-checker/internal/dnsprobe"
	"github.com/yourorg/avail-checker/internal/export"
	"github.com/yourorg/avail-checker/internal/gate"
	"github.com/yourorg/avail-checker/internal/metrics"
	"github.com/yourorg/avail-checker/internal/queue"
	"github.com/yourorg/avail-checker/internal/scheduler"
	"github.com/yourorg/avail-checker/internal/storage"
	"github.com/yourorg/avail-checker/internal/types"
)

type App struct {
	Config  config.Config
	Checker *checker.Checker
	Gate    *gate.Gate
	Queue   *queue.Queue
	Store   *storage.Store
	Runs    db.RunRepository // nil when run history is off

	log     *zap.Logger
	pub     *export.Publisher
	closers []func()
}

// New builds every component. extraURIs are object URIs the caller will read
// or write besides EXPORT_URI; any s3:// among them enables the S3 client.
func New(ctx context.Context, cfg config.Config, log *zap.Logger, extraURIs ...string) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{Config: cfg, log: log}

	store, err := cache.Open(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	a.closers = append(a.closers, func() { _ = store.Close() })

	opts := []checker.Option{checker.WithLogger(log.Named("checker")), checker.WithCache(store)}
	if cfg.DNSServer != "" {
		opts = append(opts, checker.WithProber(dnsprobe.New(cfg.DNSServer, cfg.DNSTimeout)))
	}
	a.Checker, err = checker.New(cfg.Checker, opts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("checker: %w", err)
	}

	a.Gate = gate.New(cfg.Concurrency, gate.WithObserver(func(n int) { metrics.GateInFlight.Set(float64(n)) }))
	sched := scheduler.New(a.Gate, a.Checker, cfg.Scheduler, log.Named("scheduler"))

	if a.Store, err = newStore(ctx, append(extraURIs, cfg.ExportURI)...); err != nil {
		a.Close()
		return nil, fmt.Errorf("object store: %w", err)
	}
	if cfg.ExportURI != "" {
		a.pub = export.NewPublisher(a.Store, cfg.ExportURI)
	}

	if cfg.DB.Enabled() {
		pool, err := db.Connect(ctx, cfg.DB)
		if err != nil {
			log.Warn("run history disabled", zap.Error(err))
		} else {
			a.closers = append(a.closers, pool.Close)
			a.Runs = db.NewRunRepo(pool)
		}
	}

	a.Queue = queue.New(sched,
		queue.WithLogger(log.Named("queue")),
		queue.WithProgressInterval(cfg.ProgressInterval),
		queue.WithResetter(a.Checker),
		queue.WithContext(ctx),
		queue.WithStartHook(a.recordStart),
		queue.WithCompletionHook(a.recordFinish),
	)

	log.Info("engine ready",
		zap.String("upstream", cfg.Checker.BaseURL),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Int("chunk_size", sched.Config().ChunkSize),
		zap.Duration("timeout", cfg.Checker.Retry.Timeout),
		zap.Int("max_retries", cfg.Checker.Retry.MaxRetries),
		zap.String("cache", cfg.Cache.Backend),
		zap.Bool("dns_precheck", cfg.DNSServer != ""),
		zap.Bool("run_history", a.Runs != nil),
		zap.String("export_uri", cfg.ExportURI),
	)
	return a, nil
}

func newStore(ctx context.Context, uris ...string) (*storage.Store, error) {
	for _, u := range uris {
		if strings.HasPrefix(u, "s3://") {
			return storage.NewS3(ctx)
		}
	}
	return storage.NewLocal(), nil
}

func (a *App) recordStart(ctx context.Context, runID string, startedAt time.Time) {
	if a.Runs == nil {
		return
	}
	if err := a.Runs.Start(ctx, runID, startedAt); err != nil {
		a.log.Warn("record run start", zap.String("run_id", runID), zap.Error(err))
	}
}

// recordFinish publishes the export for runs that produced results and
// stores the run summary.
func (a *App) recordFinish(ctx context.Context, sum types.RunSummary) {
	var uri string
	if a.pub != nil && sum.Status != types.RunCleared {
		u, err := a.pub.Publish(ctx, sum.ID, sum.Available)
		if err != nil {
			a.log.Error("publish export", zap.String("run_id", sum.ID), zap.Error(err))
		} else {
			uri = u
			a.log.Info("export published", zap.String("run_id", sum.ID), zap.String("uri", uri))
		}
	}
	if a.Runs != nil {
		if err := a.Runs.Finish(ctx, sum, uri); err != nil {
			a.log.Warn("record run finish", zap.String("run_id", sum.ID), zap.Error(err))
		}
	}
}

// Close releases the cache backend and the database pool.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
