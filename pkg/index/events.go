package index

import (
	"sync"
	"time"

	"github.com/peerbeam/peerbeam/internal/metrics"
)

// Change signals that a folder's index changed in some way. It carries no
// detail about which records changed; consumers re-read what they care about.
type Change struct {
	Folder string
	Time   time.Time
}

// ChangeSource delivers folder change notifications to registered handlers.
type ChangeSource interface {
	// SubscribeChanges registers fn and returns a function that removes the
	// registration. Handlers are invoked synchronously on the publisher's
	// goroutine and must return quickly without blocking.
	SubscribeChanges(fn func(Change)) (unsubscribe func())
}

// Broadcaster is an in-process ChangeSource fanning each published change
// out to all registered handlers.
type Broadcaster struct {
	mu       sync.Mutex
	nextID   int
	handlers map[int]func(Change)
}

// NewBroadcaster creates a new change broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		handlers: make(map[int]func(Change)),
	}
}

// SubscribeChanges registers fn. The returned function removes the
// registration and is safe to call more than once.
func (b *Broadcaster) SubscribeChanges(fn func(Change)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Publish delivers the change to every registered handler. Handlers run on
// the caller's goroutine, outside the broadcaster's lock.
func (b *Broadcaster) Publish(change Change) {
	if change.Time.IsZero() {
		change.Time = time.Now()
	}

	b.mu.Lock()
	fns := make([]func(Change), 0, len(b.handlers))
	for _, fn := range b.handlers {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
	metrics.RecordIndexChange(change.Folder)
}

// Count returns the current number of registered handlers.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}
