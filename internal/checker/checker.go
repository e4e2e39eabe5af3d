// Package checker queries the registrar's availability endpoint for one domain at a time.
//
// Check never fails to its caller: timeouts, transport errors, non-2xx
// responses and unreadable payloads are retried per the RetryPolicy and then
// degrade to an unavailable outcome flagged as an error.
package checker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/yourorg/avail-checker/internal/cache"
	"github.com/yourorg/avail-checker/internal/metrics"
	"github.com/yourorg/avail-checker/internal/types"
)

const (
	DefaultBaseURL   = "https://registro.br/v2/ajax/avail/raw"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	maxPayload = 64 << 10
)

// DefaultSentinels are the status values observed to mean "available".
var DefaultSentinels = []string{"0", "AVAILABLE"}

// RetryPolicy bounds how long and how often one domain is attempted.
type RetryPolicy struct {
	MaxRetries int           // retries after the first attempt
	RetryDelay time.Duration // fixed pause before each retry
	Timeout    time.Duration // hard limit per attempt
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 1, RetryDelay: 100 * time.Millisecond, Timeout: 3 * time.Second}
}

// Config is the upstream contract.
type Config struct {
	BaseURL             string   // the domain is appended as a path segment
	Sentinels           []string // status values meaning available, compared case-insensitively
	AcceptAvailableFlag bool     // also treat {"available": true} as available
	Retry               RetryPolicy
	RequestsPerSecond   float64 // process-wide pacing; 0 disables
	Burst               int
	UserAgent           string
	FailedTTL           time.Duration // how long exhausted domains are skipped; 0 disables
}

// Prober is an optional pre-check that can prove a domain is registered.
type Prober interface {
	Registered(ctx context.Context, domain string) (bool, error)
}

type Option func(*Checker)

func WithLogger(l *zap.Logger) Option {
	return func(c *Checker) {
		if l != nil {
			c.log = l
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Checker) {
		if hc != nil {
			c.client = hc
		}
	}
}

func WithCache(s cache.Store) Option {
	return func(c *Checker) {
		if s != nil {
			c.cache = s
		}
	}
}

func WithProber(p Prober) Option {
	return func(c *Checker) { c.probe = p }
}

type Checker struct {
	cfg       Config
	base      *url.URL
	origin    string
	client    *http.Client
	cache     cache.Store
	failed    *cache.FailedSet
	limiter   *rate.Limiter
	probe     Prober
	group     singleflight.Group
	sentinels map[string]struct{}
	log       *zap.Logger
}

func New(cfg Config, opts ...Option) (*Checker, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("base url: %w", err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute http(s): %q", cfg.BaseURL)
	}
	if len(cfg.Sentinels) == 0 {
		cfg.Sentinels = DefaultSentinels
	}
	if cfg.Retry.Timeout <= 0 {
		cfg.Retry.Timeout = DefaultRetryPolicy().Timeout
	}
	if cfg.Retry.MaxRetries < 0 {
		cfg.Retry.MaxRetries = 0
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = 64
	c := &Checker{
		cfg:       cfg,
		base:      base,
		origin:    base.Scheme + "://" + base.Host,
		client:    &http.Client{Transport: tr},
		failed:    cache.NewFailedSet(cfg.FailedTTL),
		sentinels: make(map[string]struct{}, len(cfg.Sentinels)),
		log:       zap.NewNop(),
	}
	for _, s := range cfg.Sentinels {
		c.sentinels[strings.ToUpper(strings.TrimSpace(s))] = struct{}{}
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		m, err := cache.NewMemory(cache.DefaultCapacity)
		if err != nil {
			return nil, err
		}
		c.cache = m
	}
	return c, nil
}

// Check returns the availability outcome for domain. Concurrent and repeated
// calls for the same domain share one upstream lookup.
func (c *Checker) Check(ctx context.Context, domain string) types.CheckOutcome {
	out := c.check(ctx, domain)
	switch {
	case out.Error:
		metrics.Checks.WithLabelValues("error").Inc()
	case out.Available:
		metrics.Checks.WithLabelValues("available").Inc()
	default:
		metrics.Checks.WithLabelValues("unavailable").Inc()
	}
	return out
}

func (c *Checker) check(ctx context.Context, domain string) types.CheckOutcome {
	if out, ok := c.memoized(ctx, domain); ok {
		return out
	}
	v, _, _ := c.group.Do(domain, func() (any, error) {
		// A sibling may have finished between our lookup and joining the group.
		if out, ok := c.memoized(ctx, domain); ok {
			return out, nil
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return c.resolve(ctx, domain), nil
	})
	return v.(types.CheckOutcome)
}

// memoized consults the cache, then the failed-set.
func (c *Checker) memoized(ctx context.Context, domain string) (types.CheckOutcome, bool) {
	avail, ok, err := c.cache.Get(ctx, domain)
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		c.log.Warn("cache get failed", zap.String("domain", domain), zap.Error(err))
	} else if ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return types.CheckOutcome{Domain: domain, Available: avail}, true
	}
	if c.failed.Contains(domain) {
		metrics.CacheLookups.WithLabelValues("failed").Inc()
		return types.CheckOutcome{Domain: domain, Error: true}, true
	}
	return types.CheckOutcome{}, false
}

func (c *Checker) resolve(ctx context.Context, domain string) types.CheckOutcome {
	if c.probe != nil {
		registered, err := c.probe.Registered(ctx, domain)
		switch {
		case err != nil:
			metrics.DNSPrecheck.WithLabelValues("error").Inc()
			c.log.Debug("dns precheck failed", zap.String("domain", domain), zap.Error(err))
		case registered:
			metrics.DNSPrecheck.WithLabelValues("registered").Inc()
			c.remember(ctx, domain, false)
			return types.CheckOutcome{Domain: domain}
		default:
			metrics.DNSPrecheck.WithLabelValues("unknown").Inc()
		}
	}

	attempts := 1 + c.cfg.Retry.MaxRetries
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			metrics.Retries.Inc()
			if !sleep(ctx, c.cfg.Retry.RetryDelay) {
				break
			}
		}
		avail, err := c.fetch(ctx, domain, attempt)
		if err == nil {
			metrics.UpstreamRequests.WithLabelValues("ok").Inc()
			c.remember(ctx, domain, avail)
			c.failed.Forget(domain)
			return types.CheckOutcome{Domain: domain, Available: avail}
		}
		lastErr = err
		metrics.UpstreamRequests.WithLabelValues(string(CategoryOf(err))).Inc()
		c.log.Debug("availability attempt failed", zap.String("domain", domain), zap.Int("attempt", attempt), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	c.failed.Mark(domain)
	c.log.Warn("availability check exhausted", zap.String("domain", domain), zap.Int("attempts", attempts), zap.Error(lastErr))
	return types.CheckOutcome{Domain: domain, Error: true}
}

func (c *Checker) remember(ctx context.Context, domain string, avail bool) {
	if err := c.cache.Set(ctx, domain, avail); err != nil {
		c.log.Warn("cache set failed", zap.String("domain", domain), zap.Error(err))
	}
}

// fetch performs one attempt under the per-attempt timeout.
func (c *Checker) fetch(ctx context.Context, domain string, attempt int) (bool, error) {
	fail := func(cat Category, status int, err error) (bool, error) {
		return false, &FetchError{Category: cat, Domain: domain, Attempt: attempt, StatusCode: status, Err: err}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fail(CategoryCanceled, 0, err)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Retry.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.base.JoinPath(domain).String(), nil)
	if err != nil {
		return fail(CategoryTransport, 0, err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Referer", c.origin+"/")
	req.Header.Set("Origin", c.origin)

	resp, err := c.client.Do(req)
	if err != nil {
		return fail(classify(ctx, reqCtx, CategoryTransport), 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fail(CategoryRateLimited, resp.StatusCode, nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(CategoryStatus, resp.StatusCode, nil)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayload))
	if err != nil {
		return fail(classify(ctx, reqCtx, CategoryTransport), 0, err)
	}
	avail, err := c.interpret(body)
	if err != nil {
		return fail(CategoryBadPayload, 0, err)
	}
	return avail, nil
}

// classify distinguishes our own timeout from the caller going away.
func classify(parent, req context.Context, fallback Category) Category {
	switch {
	case parent.Err() != nil:
		return CategoryCanceled
	case errors.Is(req.Err(), context.DeadlineExceeded):
		return CategoryTimeout
	default:
		return fallback
	}
}

// interpret reads the availability signal: a "status" field matching a
// sentinel, or "available": true when the flag is accepted.
func (c *Checker) interpret(body []byte) (bool, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return false, err
	}
	if payload == nil {
		return false, errNotObject
	}
	recognized := false
	if st, ok := payload["status"]; ok {
		recognized = true
		if _, hit := c.sentinels[strings.ToUpper(statusString(st))]; hit {
			return true, nil
		}
	}
	if c.cfg.AcceptAvailableFlag {
		if av, ok := payload["available"].(bool); ok {
			recognized = true
			if av {
				return true, nil
			}
		}
	}
	if !recognized {
		return false, errMissingStatus
	}
	return false, nil
}

func statusString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

// Reset forgets every memoized outcome; called when a run ends or is cleared.
func (c *Checker) Reset(ctx context.Context) error {
	c.failed.Reset()
	return c.cache.Purge(ctx)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
