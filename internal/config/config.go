// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yourorg/avail-checker/internal/cache"
	"github.com/yourorg/avail-checker/internal/checker"
	"github.com/yourorg/avail-checker/internal/db"
	"github.com/yourorg/avail-checker/internal/metrics"
	"github.com/yourorg/avail-checker/internal/normalize"
	"github.com/yourorg/avail-checker/internal/scheduler"
)

type Config struct {
	Port           string
	MetricsAddr    string // empty disables the metrics listener
	StaticDir      string
	MaxUploadBytes int64
	LogLevel       string

	Checker          checker.Config
	Suffixes         []string
	Concurrency      int
	Scheduler        scheduler.Config
	ProgressInterval time.Duration
	Cache            cache.Options
	DNSServer        string // empty disables the NS pre-check
	DNSTimeout       time.Duration
	ExportURI        string // file://dir or s3://bucket/prefix; empty disables publishing
	DB               db.Config
}

// FromEnv reads every setting, falling back to defaults for unset or unparsable values.
func FromEnv() Config {
	retry := checker.DefaultRetryPolicy()
	sched := scheduler.DefaultConfig()
	return Config{
		Port:           getEnv("PORT", "3000"),
		MetricsAddr:    metrics.AddrFromEnv(),
		StaticDir:      getEnv("STATIC_DIR", "./public"),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 8<<20)),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		Checker: checker.Config{
			BaseURL:             getEnv("AVAIL_BASE_URL", checker.DefaultBaseURL),
			Sentinels:           getEnvList("AVAIL_SENTINELS", checker.DefaultSentinels),
			AcceptAvailableFlag: getEnvBool("AVAIL_ACCEPT_FLAG", true),
			Retry: checker.RetryPolicy{
				MaxRetries: getEnvInt("AVAIL_MAX_RETRIES", retry.MaxRetries),
				RetryDelay: getEnvDuration("AVAIL_RETRY_DELAY", retry.RetryDelay),
				Timeout:    getEnvDuration("AVAIL_TIMEOUT", retry.Timeout),
			},
			RequestsPerSecond: getEnvFloat("AVAIL_RATE", 0),
			Burst:             getEnvInt("AVAIL_BURST", 1),
			UserAgent:         getEnv("AVAIL_USER_AGENT", checker.DefaultUserAgent),
			FailedTTL:         getEnvDuration("CACHE_FAILED_TTL", 0),
		},
		Suffixes:    getEnvList("DOMAIN_SUFFIXES", normalize.DefaultSuffixes),
		Concurrency: getEnvInt("CHECK_CONCURRENCY", 50),
		Scheduler: scheduler.Config{
			ChunkSize:  getEnvInt("CHECK_CHUNK_SIZE", sched.ChunkSize),
			ChunkPause: getEnvDuration("CHECK_CHUNK_PAUSE", sched.ChunkPause),
			RunBudget:  getEnvDuration("CHECK_RUN_BUDGET", sched.RunBudget),
		},
		ProgressInterval: getEnvDuration("CHECK_PROGRESS_INTERVAL", 500*time.Millisecond),
		Cache: cache.Options{
			Backend:       getEnv("CACHE_BACKEND", cache.BackendMemory),
			Capacity:      getEnvInt("CACHE_CAPACITY", cache.DefaultCapacity),
			BadgerDir:     os.Getenv("CACHE_BADGER_DIR"),
			RedisAddr:     getEnv("CACHE_REDIS_ADDR", "localhost:6379"),
			RedisPassword: os.Getenv("CACHE_REDIS_PASSWORD"),
			RedisDB:       getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix:   getEnv("CACHE_REDIS_PREFIX", "avail:"),
			RedisInstance: os.Getenv("CACHE_REDIS_INSTANCE"),
			RedisTTL:      getEnvDuration("CACHE_REDIS_TTL", time.Hour),
		},
		DNSServer:  os.Getenv("DNS_PRECHECK_SERVER"),
		DNSTimeout: getEnvDuration("DNS_PRECHECK_TIMEOUT", time.Second),
		ExportURI:  os.Getenv("EXPORT_URI"),
		DB:         db.FromEnv(),
	}
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("CHECK_CONCURRENCY must be >= 1, got %d", c.Concurrency))
	}
	if c.Scheduler.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("CHECK_CHUNK_SIZE must be >= 1, got %d", c.Scheduler.ChunkSize))
	}
	if c.Scheduler.ChunkPause < 0 || c.Scheduler.RunBudget < 0 || c.ProgressInterval < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.Checker.Retry.Timeout <= 0 {
		errs = append(errs, errors.New("AVAIL_TIMEOUT must be positive"))
	}
	if r := c.Checker.Retry.MaxRetries; r < 0 || r > 5 {
		errs = append(errs, fmt.Errorf("AVAIL_MAX_RETRIES must be within 0..5, got %d", r))
	}
	if c.Checker.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("AVAIL_RATE must not be negative"))
	}
	if len(c.Suffixes) == 0 {
		errs = append(errs, errors.New("DOMAIN_SUFFIXES is empty"))
	}
	switch c.Cache.Backend {
	case cache.BackendMemory, cache.BackendBadger, cache.BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", cache.ErrUnknownBackend, c.Cache.Backend))
	}
	if c.Cache.Capacity < 1 {
		errs = append(errs, fmt.Errorf("CACHE_CAPACITY must be >= 1, got %d", c.Cache.Capacity))
	}
	if c.ExportURI != "" && !strings.HasPrefix(c.ExportURI, "file://") && !strings.HasPrefix(c.ExportURI, "s3://") {
		errs = append(errs, fmt.Errorf("EXPORT_URI must be file:// or s3://, got %q", c.ExportURI))
	}
	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
