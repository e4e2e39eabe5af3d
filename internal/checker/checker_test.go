package checker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upstream is a fake availability endpoint keyed by the last path segment.
type upstream struct {
	srv      *httptest.Server
	requests atomic.Int32
	mu       sync.Mutex
	byDomain map[string]int
}

func newUpstream(t *testing.T, h func(w http.ResponseWriter, r *http.Request, domain string, n int)) *upstream {
	t.Helper()
	u := &upstream{byDomain: make(map[string]int)}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.requests.Add(1)
		domain := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		u.mu.Lock()
		u.byDomain[domain]++
		n := u.byDomain[domain]
		u.mu.Unlock()
		h(w, r, domain, n)
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func (u *upstream) hits(domain string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.byDomain[domain]
}

func newChecker(t *testing.T, u *upstream, mut func(*Config), opts ...Option) *Checker {
	t.Helper()
	cfg := Config{
		BaseURL:             u.srv.URL + "/v2/ajax/avail/raw",
		Sentinels:           []string{"0", "AVAILABLE"},
		AcceptAvailableFlag: true,
		Retry:               RetryPolicy{MaxRetries: 1, RetryDelay: 5 * time.Millisecond, Timeout: 200 * time.Millisecond},
	}
	if mut != nil {
		mut(&cfg)
	}
	c, err := New(cfg, opts...)
	require.NoError(t, err)
	return c
}

func TestCheckInterpretsSentinels(t *testing.T) {
	bodies := map[string]string{
		"numeric.com.br":   `{"status":0,"fqdn":"numeric.com.br"}`,
		"string.com.br":    `{"status":"0"}`,
		"word.com.br":      `{"status":"available"}`,
		"flag.com.br":      `{"available":true}`,
		"taken.com.br":     `{"status":2}`,
		"takenflag.com.br": `{"available":false}`,
	}
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request, domain string, _ int) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(bodies[domain]))
	})
	c := newChecker(t, u, nil)

	want := map[string]bool{
		"numeric.com.br": true, "string.com.br": true, "word.com.br": true, "flag.com.br": true,
		"taken.com.br": false, "takenflag.com.br": false,
	}
	for d, avail := range want {
		out := c.Check(context.Background(), d)
		assert.Equal(t, avail, out.Available, d)
		assert.False(t, out.Error, d)
		assert.Equal(t, d, out.Domain)
	}
}

func TestCheckSendsBrowserHeaders(t *testing.T) {
	var gotPath, gotUA, gotReferer string
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request, _ string, _ int) {
		gotPath, gotUA, gotReferer = r.URL.Path, r.Header.Get("User-Agent"), r.Header.Get("Referer")
		_, _ = w.Write([]byte(`{"status":"AVAILABLE"}`))
	})
	c := newChecker(t, u, nil)
	c.Check(context.Background(), "x.com.br")
	assert.Equal(t, "/v2/ajax/avail/raw/x.com.br", gotPath)
	assert.Equal(t, DefaultUserAgent, gotUA)
	assert.Equal(t, u.srv.URL+"/", gotReferer)
}

func TestCheckCachesOutcome(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request, _ string, _ int) {
		_, _ = w.Write([]byte(`{"status":0}`))
	})
	c := newChecker(t, u, nil)
	first := c.Check(context.Background(), "freedomain123.com.br")
	second := c.Check(context.Background(), "freedomain123.com.br")
	assert.True(t, first.Available)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, u.hits("freedomain123.com.br"))

	require.NoError(t, c.Reset(context.Background()))
	c.Check(context.Background(), "freedomain123.com.br")
	assert.Equal(t, 2, u.hits("freedomain123.com.br"), "reset forgets the cached value")
}

func TestCheckDeduplicatesConcurrentCalls(t *testing.T) {
	release := make(chan struct{})
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request, _ string, _ int) {
		<-release
		_, _ = w.Write([]byte(`{"status":0}`))
	})
	c := newChecker(t, u, func(cfg *Config) { cfg.Retry.Timeout = 2 * time.Second })

	var wg sync.WaitGroup
	outs := make([]bool, 8)
	for i := range outs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i] = c.Check(context.Background(), "dup.com.br").Available
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	for _, o := range outs {
		assert.True(t, o)
	}
	assert.Equal(t, 1, u.hits("dup.com.br"))
}

func TestCheckRetriesThenSucceeds(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request, _ string, n int) {
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"status":"AVAILABLE"}`))
	})
	c := newChecker(t, u, nil)
	out := c.Check(context.Background(), "retry.com.br")
	assert.True(t, out.Available)
	assert.False(t, out.Error)
	assert.Equal(t, 2, u.hits("retry.com.br"))
}

func TestCheckTimeoutDegrades(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request, _ string, _ int) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	c := newChecker(t, u, func(cfg *Config) { cfg.Retry.Timeout = 30 * time.Millisecond })

	start := time.Now()
	out := c.Check(context.Background(), "slow.com.br")
	assert.False(t, out.Available)
	assert.True(t, out.Error)
	assert.Equal(t, 2, u.hits("slow.com.br"), "one attempt plus one retry")
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestCheckBadPayloadExhaustsRetries(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request, domain string, _ int) {
		if domain == "html.com.br" {
			_, _ = w.Write([]byte(`<html>blocked</html>`))
			return
		}
		_, _ = w.Write([]byte(`{"fqdn":"nostatus.com.br"}`))
	})
	c := newChecker(t, u, func(cfg *Config) { cfg.Retry.MaxRetries = 2 })
	for _, d := range []string{"html.com.br", "nostatus.com.br"} {
		out := c.Check(context.Background(), d)
		assert.True(t, out.Error, d)
		assert.Equal(t, 3, u.hits(d), d)
	}
}

func TestCheckFailedSetSkipsNetwork(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request, _ string, _ int) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	c := newChecker(t, u, func(cfg *Config) {
		cfg.Retry.MaxRetries = 0
		cfg.FailedTTL = time.Minute
	})
	assert.True(t, c.Check(context.Background(), "limited.com.br").Error)
	assert.True(t, c.Check(context.Background(), "limited.com.br").Error)
	assert.Equal(t, 1, u.hits("limited.com.br"))
}

type fakeProber struct {
	registered map[string]bool
	err        error
}

func (f fakeProber) Registered(_ context.Context, d string) (bool, error) {
	return f.registered[d], f.err
}

func TestCheckDNSPrecheck(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request, _ string, _ int) {
		_, _ = w.Write([]byte(`{"status":0}`))
	})
	c := newChecker(t, u, nil, WithProber(fakeProber{registered: map[string]bool{"google.com.br": true}}))
	assert.False(t, c.Check(context.Background(), "google.com.br").Available)
	assert.Equal(t, 0, u.hits("google.com.br"))
	assert.True(t, c.Check(context.Background(), "livre.com.br").Available)
	assert.Equal(t, 1, u.hits("livre.com.br"))

	broken := newChecker(t, u, nil, WithProber(fakeProber{err: errors.New("servfail")}))
	assert.True(t, broken.Check(context.Background(), "outro.com.br").Available, "probe errors fall through to upstream")
}

func TestCheckRateLimited(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request, _ string, _ int) {
		_, _ = w.Write([]byte(`{"status":1}`))
	})
	c := newChecker(t, u, func(cfg *Config) {
		cfg.RequestsPerSecond = 50
		cfg.Burst = 1
	})
	start := time.Now()
	for _, d := range []string{"a.com.br", "b.com.br", "c.com.br", "d.com.br"} {
		c.Check(context.Background(), d)
	}
	// 4 requests at 50/s with burst 1 need at least 3 intervals of 20ms.
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New(Config{BaseURL: "registro.br/avail"})
	assert.Error(t, err)
}

func TestFetchErrorCategory(t *testing.T) {
	err := error(&FetchError{Category: CategoryTimeout, Domain: "x.br", Attempt: 1, Err: context.DeadlineExceeded})
	assert.Equal(t, CategoryTimeout, CategoryOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Category(""), CategoryOf(errors.New("other")))
}
