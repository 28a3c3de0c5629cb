package otp

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests. Cooldown
// stamps and challenges live in process memory, so the single-flight
// guarantees only hold within one process; use PostgresStore for anything
// multi-instance.
type MemoryStore struct {
	mu         sync.RWMutex
	challenges map[string]*Challenge
	lastIssued map[string]time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		challenges: make(map[string]*Challenge),
		lastIssued: make(map[string]time.Time),
	}
}

func (m *MemoryStore) Put(ctx context.Context, ch *Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ch
	m.challenges[ch.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Challenge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.challenges[id]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	cp := *ch
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, ch *Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.challenges[ch.ID]; !ok {
		return ErrChallengeNotFound
	}
	cp := *ch
	m.challenges[ch.ID] = &cp
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.challenges, id)
	return nil
}

func (m *MemoryStore) DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, ch := range m.challenges {
		if limit > 0 && removed >= limit {
			break
		}
		if ch.Expired(now) {
			delete(m.challenges, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) LastIssued(ctx context.Context, destination string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.lastIssued[destination]
	return t, ok, nil
}

func (m *MemoryStore) SetLastIssued(ctx context.Context, destination string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastIssued[destination] = t
	return nil
}

func (m *MemoryStore) ClearLastIssued(ctx context.Context, destination string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.lastIssued[destination]; ok && cur.Equal(t) {
		delete(m.lastIssued, destination)
	}
	return nil
}

// Count returns how many challenges are currently stored.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.challenges)
}
