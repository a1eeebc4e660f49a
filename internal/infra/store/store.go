package store

import (
	"context"
	"sync"
	"time"
)

// Store keeps encoded responses by directive key so a redelivered
// directive is answered without running its action again.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, body []byte, ttl time.Duration) error
}

type cached struct {
	body     []byte
	expireAt time.Time
}

type MemoryStore struct {
	mu        sync.RWMutex
	responses map[string]cached
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		responses: make(map[string]cached),
		now:       time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.responses[key]
	if !ok || !m.now().Before(c.expireAt) {
		return nil, false, nil
	}
	return c.body, true, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, body []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, c := range m.responses {
		if !now.Before(c.expireAt) {
			delete(m.responses, id)
		}
	}

	m.responses[key] = cached{body: append([]byte(nil), body...), expireAt: now.Add(ttl)}
	return nil
}
