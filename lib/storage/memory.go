package storage

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

var _ Store = &MemoryStore{}

// MemoryStore keeps values in memory. Values are lost when the process exits.
type MemoryStore struct {
	cache *ttlcache.Cache[string, []byte]
}

// NewMemoryStore creates a MemoryStore that evicts values after the given TTL. A zero TTL keeps values forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: ttlcache.New[string, []byte](
			ttlcache.WithTTL[string, []byte](ttl),
			ttlcache.WithDisableTouchOnHit[string, []byte](),
		),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	item := m.cache.Get(key)
	if item == nil {
		return nil, ErrNotFound
	}
	// copy, so callers can't alter the stored value
	return append([]byte(nil), item.Value()...), nil
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	m.cache.Set(key, append([]byte(nil), value...), ttlcache.DefaultTTL)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	m.cache.Delete(key)
	return nil
}
