package queue

import (
	"sync"
	"time"

	"github.com/yourorg/avail-checker/internal/types"
)

// Subscribe returns a channel of push events and a func that detaches it.
// Progress events are dropped for a subscriber whose buffer is full; terminal
// events displace the oldest buffered event instead.
func (q *Queue) Subscribe(buf int) (<-chan types.Event, func()) {
	if buf < 1 {
		buf = 1
	}
	ch := make(chan types.Event, buf)
	q.mu.Lock()
	id := q.nextSub
	q.nextSub++
	q.subs[id] = ch
	q.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			q.mu.Lock()
			delete(q.subs, id)
			close(ch)
			q.mu.Unlock()
		})
	}
}

func (q *Queue) eventLocked(typ types.EventType, r *Run) types.Event {
	ev := types.Event{Type: typ, Progress: q.progressLocked()}
	if r != nil {
		ev.RunID = r.id
		ev.TimeElapsed = time.Since(r.startedAt).Milliseconds()
	}
	return ev
}

// emitLocked sends under q.mu so subscribers observe events in state order.
func (q *Queue) emitLocked(ev types.Event) {
	if ev.Type == types.EventProgress {
		q.lastEmit = time.Now()
	}
	for _, ch := range q.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		if ev.Type == types.EventProgress {
			continue
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}
