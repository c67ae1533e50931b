package session

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps sessions in process memory with TTL eviction.
// Suitable for a single instance; use the redis store behind a balancer.
type MemoryStore struct{ c *gocache.Cache }

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (m *MemoryStore) Put(_ context.Context, s *Session, ttl time.Duration) error {
	m.c.Set(s.ID, s, ttl)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	v, ok := m.c.Get(id)
	if !ok {
		return nil, nil
	}
	s, _ := v.(*Session)
	return s, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.c.Delete(id)
	return nil
}
