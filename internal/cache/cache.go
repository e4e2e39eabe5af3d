// Package cache memoizes availability outcomes per domain for the duration of a run.
//
// A Store is bounded: every backend evicts once its configured capacity is
// reached (LRU for the memory backend, drop-all generations for badger and
// redis). A cached value is never authoritative; a successful re-check always
// overwrites it.
package cache

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCapacity = 100_000

// ErrUnknownBackend is returned by Open for an unrecognized backend name.
var ErrUnknownBackend = errors.New("unknown cache backend")

// Store is the result cache contract shared by all backends.
type Store interface {
	// Get returns the cached availability; ok is false on a miss.
	Get(ctx context.Context, domain string) (available bool, ok bool, err error)
	// Set records availability, evicting when the store is at capacity.
	Set(ctx context.Context, domain string, available bool) error
	// Purge drops every entry.
	Purge(ctx context.Context) error
	// Len is the number of live entries as tracked by the store.
	Len() int
	Close() error
}

// Memory is an in-process LRU store.
type Memory struct {
	lru *lru.Cache[string, bool]
}

// NewMemory returns an LRU store holding at most capacity entries.
func NewMemory(capacity int) (*Memory, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c, err := lru.New[string, bool](capacity)
	if err != nil {
		return nil, fmt.Errorf("lru: %w", err)
	}
	return &Memory{lru: c}, nil
}

func (m *Memory) Get(_ context.Context, domain string) (bool, bool, error) {
	v, ok := m.lru.Get(domain)
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, domain string, available bool) error {
	m.lru.Add(domain, available)
	return nil
}

func (m *Memory) Purge(context.Context) error {
	m.lru.Purge()
	return nil
}

func (m *Memory) Len() int { return m.lru.Len() }

func (m *Memory) Close() error { return nil }

// boolByte encodes availability for byte-oriented backends.
func boolByte(v bool) []byte {
	if v {
		return []byte{'1'}
	}
	return []byte{'0'}
}

func byteBool(b []byte) bool { return len(b) == 1 && b[0] == '1' }
