package cache

import (
	"sync"
	"time"
)

// FailedSet remembers domains whose checks exhausted their retries so the rest
// of the run skips them. A zero TTL disables it.
type FailedSet struct {
	mu    sync.Mutex
	ttl   time.Duration
	until map[string]time.Time
	now   func() time.Time
}

func NewFailedSet(ttl time.Duration) *FailedSet {
	return &FailedSet{ttl: ttl, until: make(map[string]time.Time), now: time.Now}
}

func (f *FailedSet) Enabled() bool { return f != nil && f.ttl > 0 }

func (f *FailedSet) Mark(domain string) {
	if !f.Enabled() {
		return
	}
	f.mu.Lock()
	f.until[domain] = f.now().Add(f.ttl)
	f.mu.Unlock()
}

// Contains reports whether domain failed recently; expired marks are dropped.
func (f *FailedSet) Contains(domain string) bool {
	if !f.Enabled() {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	exp, ok := f.until[domain]
	if !ok {
		return false
	}
	if !f.now().Before(exp) {
		delete(f.until, domain)
		return false
	}
	return true
}

// Forget removes a mark after a later success.
func (f *FailedSet) Forget(domain string) {
	if !f.Enabled() {
		return
	}
	f.mu.Lock()
	delete(f.until, domain)
	f.mu.Unlock()
}

func (f *FailedSet) Reset() {
	if f == nil {
		return
	}
	f.mu.Lock()
	f.until = make(map[string]time.Time)
	f.mu.Unlock()
}

func (f *FailedSet) Len() int {
	if f == nil {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.until)
}
