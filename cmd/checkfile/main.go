// Command checkfile runs one spreadsheet through the check engine without the
// HTTP server and writes the available set as xlsx.
//
//	checkfile [-o file://out.xlsx] file:///path/dominios.xlsx
//	checkfile -o s3://bucket/out.xlsx s3://bucket/in/dominios.csv
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/avail-checker/internal/app"
	"github.com/yourorg/avail-checker/internal/config"
	"github.com/yourorg/avail-checker/internal/export"
	"github.com/yourorg/avail-checker/internal/ingest"
	"github.com/yourorg/avail-checker/internal/logging"
	"github.com/yourorg/avail-checker/internal/scheduler"
	"github.com/yourorg/avail-checker/internal/types"
)

func main() {
	out := flag.String("o", "file://"+export.FileName, "output URI (file:// or s3://)")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: checkfile [-o output-uri] input-uri")
		os.Exit(2)
	}
	os.Exit(run(flag.Arg(0), *out))
}

func run(in, out string) int {
	cfg := config.FromEnv()
	zl := logging.New(cfg.LogLevel)
	defer zl.Sync()
	if err := cfg.Validate(); err != nil {
		zl.Error("invalid configuration", zap.Error(err))
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := app.New(ctx, cfg, zl, in, out)
	if err != nil {
		zl.Error("engine init", zap.Error(err))
		return 1
	}
	defer engine.Close()

	items, err := load(ctx, engine, in, cfg.Suffixes)
	if err != nil {
		zl.Error("read input", zap.String("uri", in), zap.Error(err))
		return 1
	}

	events, cancel := engine.Queue.Subscribe(16)
	defer cancel()
	r, err := engine.Queue.AddDomains(items)
	if err != nil {
		zl.Error("queue domains", zap.Error(err))
		return 1
	}
	go func() {
		for ev := range events {
			if ev.Type == types.EventProgress {
				zl.Info("progress",
					zap.Int("processed", ev.Progress.Processed),
					zap.Int("total", ev.Progress.Total),
					zap.Int("available", ev.Progress.Available),
					zap.Int64("elapsed_ms", ev.TimeElapsed),
				)
			}
		}
	}()

	runErr := r.Wait(ctx)
	code := 0
	switch {
	case runErr == nil:
	case errors.Is(runErr, scheduler.ErrBudgetExceeded):
		zl.Warn("run budget exceeded; writing partial results", zap.Error(runErr))
		code = 3
	default:
		zl.Error("run aborted", zap.Error(runErr))
		return 1
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, engine.Queue.Available()); err != nil {
		zl.Error("render export", zap.Error(err))
		return 1
	}
	uri, err := engine.Store.Put(ctx, out, &buf)
	if err != nil {
		zl.Error("write export", zap.String("uri", out), zap.Error(err))
		return 1
	}
	p := engine.Queue.Progress()
	zl.Info("done",
		zap.String("output", uri),
		zap.Int("processed", p.Processed),
		zap.Int("available", p.Available),
		zap.Duration("elapsed", time.Since(r.StartedAt())),
	)
	return code
}

func load(ctx context.Context, engine *app.App, uri string, suffixes []string) ([]types.DomainItem, error) {
	rc, _, err := engine.Store.Get(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	rows, err := ingest.Parse(path.Base(uri), rc)
	if err != nil {
		return nil, err
	}
	return ingest.ToItems(rows, suffixes)
}
