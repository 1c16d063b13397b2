package handoff

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	completedSuffix = ":completed"
	idSuffix        = ":id"
)

// MemoryStore keeps markers in process memory with a TTL.
type MemoryStore struct {
	cache *cache.Cache
}

// NewMemoryStore creates a store whose entries expire after ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{cache: cache.New(ttl, ttl*2)}
}

func (s *MemoryStore) Set(_ context.Context, session string, m Marker) error {
	s.cache.Delete(session + idSuffix)
	if m.RegistrationID != "" {
		s.cache.SetDefault(session+idSuffix, m.RegistrationID)
	}
	s.cache.SetDefault(session+completedSuffix, m.Completed)
	return nil
}

func (s *MemoryStore) Peek(_ context.Context, session string) (Marker, error) {
	var m Marker
	if v, ok := s.cache.Get(session + completedSuffix); ok {
		m.Completed, _ = v.(bool)
	}
	if v, ok := s.cache.Get(session + idSuffix); ok {
		m.RegistrationID, _ = v.(string)
	}
	return m, nil
}

func (s *MemoryStore) Clear(_ context.Context, session string) error {
	s.cache.Delete(session + completedSuffix)
	s.cache.Delete(session + idSuffix)
	return nil
}
