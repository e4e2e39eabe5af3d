package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/avail-checker/internal/api"
	"github.com/yourorg/avail-checker/internal/app"
	"github.com/yourorg/avail-checker/internal/config"
	"github.com/yourorg/avail-checker/internal/logging"
	"github.com/yourorg/avail-checker/internal/metrics"
)

func main() {
	cfg := config.FromEnv()

	// Structured logger (zap)
	zl := logging.New(cfg.LogLevel)
	defer zl.Sync()

	if err := cfg.Validate(); err != nil {
		zl.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics server
	metrics.Init()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				zl.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	engine, err := app.New(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("engine init", zap.Error(err))
	}
	defer engine.Close()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.MaxMultipartMemory = cfg.MaxUploadBytes
	r.Use(gin.Recovery(), api.RequestLogger(zl.Named("http")))

	// CORS middleware
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:   []string{"Content-Length", "Content-Disposition"},
		MaxAge:          12 * time.Hour,
	}))

	// Serve static files
	if st, err := os.Stat(cfg.StaticDir); err == nil && st.IsDir() {
		r.Static("/static", cfg.StaticDir)
		r.StaticFile("/", filepath.Join(cfg.StaticDir, "index.html"))
		r.StaticFile("/index.html", filepath.Join(cfg.StaticDir, "index.html"))
	}

	handlerOpts := []api.Option{api.WithLogger(zl.Named("api"))}
	if engine.Runs != nil {
		handlerOpts = append(handlerOpts, api.WithRunRepo(engine.Runs))
	}
	api.NewHandler(engine.Queue, cfg.Suffixes, handlerOpts...).Register(r)

	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// Request contexts end on shutdown so progress streams close.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		zl.Info("server starting", zap.String("addr", addr), zap.String("metrics", cfg.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("shutdown", zap.Error(err))
	}
}
