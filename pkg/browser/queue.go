package browser

import (
	"sync"

	"github.com/peerbeam/peerbeam/internal/metrics"
)

// preloadQueue is an insertion-ordered set of paths waiting to be warmed.
// Requesting a path already in the queue moves it to the back, so the most
// recently requested path is always served next.
type preloadQueue struct {
	mu    sync.Mutex
	paths []string
}

func newPreloadQueue() *preloadQueue {
	return &preloadQueue{}
}

// request queues path, moving it to the back if already queued.
func (q *preloadQueue) request(path string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, p := range q.paths {
		if p == path {
			q.paths = append(append(q.paths[:i], q.paths[i+1:]...), path)
			return
		}
	}
	q.paths = append(q.paths, path)
	metrics.SetPreloadQueueDepth(len(q.paths))
}

// popFreshest removes and returns the most recently requested path.
func (q *preloadQueue) popFreshest() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.paths) == 0 {
		return "", false
	}
	path := q.paths[len(q.paths)-1]
	q.paths = q.paths[:len(q.paths)-1]
	metrics.SetPreloadQueueDepth(len(q.paths))
	return path, true
}

// remove drops path from the queue if present. It covers re-requests that
// arrived while the path was being warmed.
func (q *preloadQueue) remove(path string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, p := range q.paths {
		if p == path {
			q.paths = append(q.paths[:i], q.paths[i+1:]...)
			metrics.SetPreloadQueueDepth(len(q.paths))
			return
		}
	}
}

func (q *preloadQueue) isEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.paths) == 0
}

func (q *preloadQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.paths)
}
