// Package eventbus carries small in-process signals between components.
package eventbus

import (
	"sync"
	"time"
)

// Topic names are stable strings used by subscribers to filter.
const (
	TopicCycleCompleted = "monitor.cycle.completed"
	TopicCycleFailed    = "monitor.cycle.failed"
	TopicNotifySent     = "notify.sent"
	TopicNotifyFailed   = "notify.failed"
	TopicNotifyDeduped  = "notify.deduped"
)

// Event is a lightweight, in-memory signal.
//
// Contract:
//   - Publish never blocks; slow subscribers drop events.
//   - Data should be small and JSON-serializable.
type Event struct {
	Topic string
	Time  time.Time
	Data  any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus with no background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.Mutex
	subs map[uint64]chan Event
	seq  uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sends happen under the lock; channels are only closed by Unsubscribe,
	// which takes the same lock, so a send never races a close.
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.seq++
	id := b.seq
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}
