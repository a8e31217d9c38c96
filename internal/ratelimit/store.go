package ratelimit

import (
	"context"
	"sync"
	"time"
)

// CounterStore increments the counter for a rate-limit key within the current
// fixed window as a single atomic operation. It returns the post-increment
// count and the instant the window resets.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Clock supplies the current time. Injected so window expiry is testable
// without real timers.
type Clock func() time.Time

type memoryWindow struct {
	count int64
	start time.Time
}

// MemoryStore is an in-process CounterStore for single-node deployments and
// tests. Expired windows are replaced on the next increment.
type MemoryStore struct {
	mu      sync.Mutex
	now     Clock
	windows map[string]*memoryWindow
}

// NewMemoryStore creates a MemoryStore. now may be nil for wall-clock time.
func NewMemoryStore(now Clock) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:     now,
		windows: make(map[string]*memoryWindow),
	}
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	start := now.Truncate(window)
	w, ok := s.windows[key]
	if !ok || w.start.Before(start) {
		w = &memoryWindow{start: start}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.start.Add(window), nil
}
