// Package gate bounds how many checks hold a network slot at once.
package gate

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate is a counting semaphore of fixed width. Waiters are served in FIFO order.
type Gate struct {
	sem      *semaphore.Weighted
	width    int
	inFlight atomic.Int64
	peak     atomic.Int64
	onChange func(inFlight int)
}

type Option func(*Gate)

// WithObserver is called with the new in-flight count after every acquire and release.
func WithObserver(fn func(inFlight int)) Option {
	return func(g *Gate) { g.onChange = fn }
}

// New returns a gate of the given width; widths below 1 are raised to 1.
func New(width int, opts ...Option) *Gate {
	if width < 1 {
		width = 1
	}
	g := &Gate{sem: semaphore.NewWeighted(int64(width)), width: width}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Acquire blocks until a slot frees or ctx ends. The returned release is safe
// to call more than once; only the first call frees the slot.
func (g *Gate) Acquire(ctx context.Context) (release func(), err error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return func() {}, err
	}
	n := g.inFlight.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	g.notify(n)
	var once sync.Once
	return func() {
		once.Do(func() {
			g.notify(g.inFlight.Add(-1))
			g.sem.Release(1)
		})
	}, nil
}

// Do runs fn while holding a slot. The slot is released even if fn panics.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context)) error {
	release, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	fn(ctx)
	return nil
}

func (g *Gate) notify(n int64) {
	if g.onChange != nil {
		g.onChange(int(n))
	}
}

func (g *Gate) Width() int { return g.width }

// InFlight is the number of slots currently held.
func (g *Gate) InFlight() int { return int(g.inFlight.Load()) }

// Peak is the highest InFlight observed since creation.
func (g *Gate) Peak() int { return int(g.peak.Load()) }
