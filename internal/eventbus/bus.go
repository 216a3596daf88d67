// Package eventbus is an in-memory, non-blocking fan-out of delivery events.
package eventbus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Event is a small signal published by the notifier. Data should be
// JSON-serializable.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// Bus delivers events to subscribers. Publish never blocks: a subscriber whose
// buffer is full misses the event.
type Bus interface {
	Publish(e Event)
	// Subscribe returns a channel receiving events whose Type starts with
	// prefix ("" for all) and a function that closes it.
	Subscribe(prefix string, buffer int) (<-chan Event, func())
	Dropped() uint64
}

func New() Bus { return &memBus{subs: map[uint64]*sub{}} }

type sub struct {
	prefix string
	ch     chan Event
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[uint64]*sub
	seq     uint64
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sends are non-blocking, so holding the read lock keeps unsubscribe from
	// closing a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !strings.HasPrefix(e.Type, s.prefix) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(prefix string, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &sub{prefix: prefix, ch: make(chan Event, buffer)}

	b.mu.Lock()
	b.seq++
	id := b.seq
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(s.ch)
			b.mu.Unlock()
		})
	}
}

// Dropped counts events lost to full subscriber buffers.
func (b *memBus) Dropped() uint64 { return b.dropped.Load() }
