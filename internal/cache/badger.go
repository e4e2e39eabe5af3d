package cache

import (
	"context"
	"errors"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Badger is a disk-backed store for runs too large to memoize in process.
// When the key count reaches capacity the whole generation is dropped.
type Badger struct {
	db       *badger.DB
	capacity int

	mu sync.Mutex
	n  int
}

// OpenBadger opens a store at dir; an empty dir opens an in-memory badger.
func OpenBadger(dir string, capacity int) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Badger{db: db, capacity: capacity}
	// Stale entries from a previous process are not part of this run.
	if err := db.DropAll(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Badger) Get(_ context.Context, domain string) (bool, bool, error) {
	var (
		available bool
		found     bool
	)
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(domain))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(v []byte) error {
			available = byteBool(v)
			return nil
		})
	})
	return available, found, err
}

func (b *Badger) Set(_ context.Context, domain string, available bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.n >= b.capacity {
		if err := b.db.DropAll(); err != nil {
			return err
		}
		b.n = 0
	}
	created := false
	err := b.db.Update(func(txn *badger.Txn) error {
		k := []byte(domain)
		if _, err := txn.Get(k); errors.Is(err, badger.ErrKeyNotFound) {
			created = true
		} else if err != nil {
			return err
		}
		return txn.Set(k, boolByte(available))
	})
	if err != nil {
		return err
	}
	if created {
		b.n++
	}
	return nil
}

func (b *Badger) Purge(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.db.DropAll(); err != nil {
		return err
	}
	b.n = 0
	return nil
}

func (b *Badger) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

func (b *Badger) Close() error { return b.db.Close() }
