package index

import (
	"sync"
	"testing"
)

func TestBroadcasterSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster()

	unsub1 := b.SubscribeChanges(func(Change) {})
	unsub2 := b.SubscribeChanges(func(Change) {})

	if b.Count() != 2 {
		t.Fatalf("expected 2 handlers, got %d", b.Count())
	}

	unsub1()
	if b.Count() != 1 {
		t.Fatalf("expected 1 handler after unsubscribe, got %d", b.Count())
	}

	// Unsubscribing twice is harmless.
	unsub1()
	if b.Count() != 1 {
		t.Fatalf("expected 1 handler after double unsubscribe, got %d", b.Count())
	}

	unsub2()
	if b.Count() != 0 {
		t.Fatalf("expected 0 handlers, got %d", b.Count())
	}
}

func TestBroadcasterPublish(t *testing.T) {
	b := NewBroadcaster()

	var got []Change
	unsub := b.SubscribeChanges(func(c Change) {
		got = append(got, c)
	})
	defer unsub()

	b.Publish(Change{Folder: "docs"})

	if len(got) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(got))
	}
	if got[0].Folder != "docs" {
		t.Errorf("expected folder docs, got %q", got[0].Folder)
	}
	if got[0].Time.IsZero() {
		t.Error("expected the publish time to be filled in")
	}
}

func TestBroadcasterStopsAfterUnsubscribe(t *testing.T) {
	b := NewBroadcaster()

	calls := 0
	unsub := b.SubscribeChanges(func(Change) { calls++ })

	b.Publish(Change{Folder: "docs"})
	unsub()
	b.Publish(Change{Folder: "docs"})

	if calls != 1 {
		t.Errorf("expected 1 delivery, got %d", calls)
	}
}

func TestBroadcasterHandlerMaySubscribe(t *testing.T) {
	// Handlers run outside the broadcaster's lock, so a handler that touches
	// the broadcaster must not deadlock.
	b := NewBroadcaster()

	var unsub func()
	unsub = b.SubscribeChanges(func(Change) {
		unsub()
	})

	b.Publish(Change{Folder: "docs"})
	if b.Count() != 0 {
		t.Errorf("expected handler to remove itself, got %d handlers", b.Count())
	}
}

func TestBroadcasterConcurrentPublish(t *testing.T) {
	b := NewBroadcaster()

	var mu sync.Mutex
	calls := 0
	unsub := b.SubscribeChanges(func(Change) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	defer unsub()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				b.Publish(Change{Folder: "docs"})
			}
		}()
	}
	wg.Wait()

	if calls != 200 {
		t.Errorf("expected 200 deliveries, got %d", calls)
	}
}
