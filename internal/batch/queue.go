package batch

import (
	"context"
	"sync"
	"time"
)

// Store is an unbounded, thread-safe FIFO of pending work items. Enqueue
// never blocks; TryDequeue waits up to a timeout so the worker can observe
// its stop signal between waits.
type Store struct {
	mu    sync.Mutex
	items []WorkItem
	ready chan struct{}
}

func NewStore() *Store {
	return &Store{ready: make(chan struct{}, 1)}
}

func (s *Store) Enqueue(item WorkItem) {
	s.mu.Lock()
	s.items = append(s.items, item)
	s.mu.Unlock()
	s.signal()
}

// TryDequeue returns the oldest item, waiting up to timeout for one to
// arrive. It returns false when the timeout elapses or ctx is cancelled.
func (s *Store) TryDequeue(ctx context.Context, timeout time.Duration) (WorkItem, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		s.mu.Lock()
		if len(s.items) > 0 {
			item := s.items[0]
			s.items = s.items[1:]
			remaining := len(s.items)
			s.mu.Unlock()
			if remaining > 0 {
				// Keep the wakeup token alive for the next waiter.
				s.signal()
			}
			return item, true
		}
		s.mu.Unlock()

		select {
		case <-s.ready:
		case <-timer.C:
			return WorkItem{}, false
		case <-ctx.Done():
			return WorkItem{}, false
		}
	}
}

func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Clear drops all pending items and reports how many were removed.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := len(s.items)
	s.items = nil
	return dropped
}

func (s *Store) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}
