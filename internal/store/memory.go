package store

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	billID  int64
	expires time.Time
}

// MemoryStore is a process-local store.  Bill ids do not survive a
// restart.
type MemoryStore struct {
	mu  sync.Mutex
	m   map[int64]memEntry
	ttl time.Duration
	now func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{m: map[int64]memEntry{}, ttl: ttl, now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, userID, billID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[userID] = memEntry{billID: billID, expires: expiry(s.now(), s.ttl)}
	return nil
}

func (s *MemoryStore) Load(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[userID]
	if !ok {
		return 0, ErrNotFound
	}
	if !e.expires.IsZero() && s.now().After(e.expires) {
		delete(s.m, userID)
		return 0, ErrNotFound
	}
	return e.billID, nil
}

func (s *MemoryStore) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, userID)
	return nil
}
