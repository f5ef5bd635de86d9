package database

import (
	"github.com/VictoriaMetrics/fastcache"
)

// CachedStore wraps a KeyValueStore with a bounded in-memory read cache,
// the same fastcache-backed read-through pattern go-ethereum-family
// nodes use in front of their trie/state database to avoid re-hitting
// leveldb for hot keys (here: the Tributary tape and validatorset's
// InSet/AllocationsKey lookups, both read far more often than written).
type CachedStore struct {
	KeyValueStore
	cache *fastcache.Cache
}

// NewCachedStore wraps inner with an in-memory cache sized maxBytes.
func NewCachedStore(inner KeyValueStore, maxBytes int) *CachedStore {
	return &CachedStore{KeyValueStore: inner, cache: fastcache.New(maxBytes)}
}

func (c *CachedStore) Get(key []byte) ([]byte, error) {
	if v, ok := c.cache.HasGet(nil, key); ok {
		return v, nil
	}
	v, err := c.KeyValueStore.Get(key)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, v)
	return v, nil
}

func (c *CachedStore) Put(key, value []byte) error {
	if err := c.KeyValueStore.Put(key, value); err != nil {
		return err
	}
	c.cache.Set(key, value)
	return nil
}

func (c *CachedStore) Delete(key []byte) error {
	if err := c.KeyValueStore.Delete(key); err != nil {
		return err
	}
	c.cache.Del(key)
	return nil
}
