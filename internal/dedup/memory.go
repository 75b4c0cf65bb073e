package dedup

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store for tests and single-process runs.
type MemoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

func (s *MemoryStore) Seen(_ context.Context, group, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.seen[key(group, eventID)]
	return ok && s.now().Sub(at) < s.ttl, nil
}

func (s *MemoryStore) Mark(_ context.Context, group, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[key(group, eventID)] = s.now()
	return nil
}

func (s *MemoryStore) Purge(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, at := range s.seen {
		if s.now().Sub(at) >= s.ttl {
			delete(s.seen, k)
			n++
		}
	}
	return n, nil
}
