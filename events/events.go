// Package events carries change notifications from mutations to the
// views that need to re-read state.
package events

import (
	"log/slog"
	"sync"
	"time"
)

type Kind string

const (
	KindCreated Kind = "created"
	KindUpdated Kind = "updated"
	// KindSession marks a login, logout or session user refresh.
	KindSession Kind = "session"
)

// Change describes one mutation. Subscribers use Collection and ID to
// decide what to re-read.
type Change struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id,omitempty"`
	Kind       Kind      `json:"kind"`
	At         time.Time `json:"at"`
}

// Publisher is implemented by anything changes can be sent to.
type Publisher interface {
	Publish(Change)
}

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Bus fans every published Change out to all current subscribers.
// Publish never blocks: a subscriber whose buffer is full misses the
// change and the drop is logged.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Change
	next   int
	buffer int
	logger *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bus{
		subs:   make(map[int]chan Change),
		buffer: DefaultBuffer,
		logger: logger,
	}
}

// Subscribe registers a new subscriber. The returned function removes it
// and closes its channel; calling it more than once is safe.
func (b *Bus) Subscribe() (<-chan Change, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Change, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

func (b *Bus) Publish(c Change) {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- c:
		default:
			b.logger.Warn("subscriber buffer full, dropping change",
				slog.Int("subscriber", id),
				slog.String("collection", c.Collection),
				slog.String("id", c.ID),
			)
		}
	}
}

// Subscribers returns the number of active subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
