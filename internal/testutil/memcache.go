package testutil

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"time"
)

// ErrMemCacheMiss is returned by MemCache.Get for absent keys.
var ErrMemCacheMiss = stderrors.New("testutil: cache miss")

// MemCache is a JSON round-tripping in-memory cache. TTLs are recorded but
// not enforced.
type MemCache struct {
	mu   sync.Mutex
	data map[string][]byte
	TTLs map[string]time.Duration
	Gets int
	Hits int
}

func NewMemCache() *MemCache {
	return &MemCache{data: map[string][]byte{}, TTLs: map[string]time.Duration{}}
}

func (c *MemCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gets++
	raw, ok := c.data[key]
	if !ok {
		return ErrMemCacheMiss
	}
	c.Hits++
	return json.Unmarshal(raw, dest)
}

func (c *MemCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	c.TTLs[key] = ttl
	return nil
}

func (c *MemCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}
