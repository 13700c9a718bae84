package qr

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"esim-service/internal/model"

	"github.com/redis/go-redis/v9"
)

// Cache holds the current QR code per profile. Get returns nil, nil on a miss.
type Cache interface {
	Get(ctx context.Context, profileID string) (*model.QRCode, error)
	Put(ctx context.Context, code *model.QRCode, ttl time.Duration) error
	Delete(ctx context.Context, profileID string) error
}

const keyPrefix = "esim:qr:"

// RedisCache stores codes as JSON with the code's remaining lifetime as TTL
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a redis-backed QR cache
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, profileID string) (*model.QRCode, error) {
	raw, err := c.client.Get(ctx, keyPrefix+profileID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var out model.QRCode
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RedisCache) Put(ctx context.Context, code *model.QRCode, ttl time.Duration) error {
	raw, err := json.Marshal(code)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+code.ProfileID, raw, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, profileID string) error {
	return c.client.Del(ctx, keyPrefix+profileID).Err()
}

type memoryEntry struct {
	code    model.QRCode
	expires time.Time
}

// MemoryCache is the single-process fallback when no redis is configured
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty in-process QR cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]memoryEntry{}, now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, profileID string) (*model.QRCode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[profileID]
	if !ok {
		return nil, nil
	}
	if !c.now().Before(entry.expires) {
		delete(c.entries, profileID)
		return nil, nil
	}
	code := entry.code
	return &code, nil
}

func (c *MemoryCache) Put(_ context.Context, code *model.QRCode, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[code.ProfileID] = memoryEntry{code: *code, expires: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, profileID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, profileID)
	return nil
}
