package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const localPurgeInterval = time.Minute

type localEntry struct {
	value     string
	expiresAt time.Time
}

// LocalCache is the single-process stand-in for RedisAdapter, used when no
// Redis address is configured.
type LocalCache struct {
	mu      sync.Mutex
	entries   map[string]localEntry
	now       func() time.Time
	nextPurge time.Time
}

func NewLocalCache() *LocalCache {
	return &LocalCache{
		entries: make(map[string]localEntry),
		now:     time.Now,
	}
}

// get must be called with mu held.
func (c *LocalCache) get(key string) (localEntry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return e, false
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return e, false
	}
	return e, true
}

// purgeExpired drops every expired entry, at most once per localPurgeInterval.
// It must be called with mu held.
func (c *LocalCache) purgeExpired() {
	now := c.now()
	if now.Before(c.nextPurge) {
		return
	}
	c.nextPurge = now.Add(localPurgeInterval)
	for k, e := range c.entries {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

func (c *LocalCache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeExpired()
	k := lockKeyPrefix + key
	if _, held := c.get(k); held {
		return "", false, nil
	}
	token := uuid.NewString()
	c.entries[k] = localEntry{value: token, expiresAt: c.now().Add(ttl)}
	return token, true, nil
}

func (c *LocalCache) ReleaseLock(ctx context.Context, key, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := lockKeyPrefix + key
	if e, held := c.get(k); held && e.value == token {
		delete(c.entries, k)
	}
	return nil
}

func (c *LocalCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeExpired()
	k := idempotencyKeyPrefix + key
	if _, ok := c.get(k); ok {
		return false, nil
	}
	c.entries[k] = localEntry{value: "1", expiresAt: c.now().Add(idempotencyKeyTTL)}
	return true, nil
}

func (c *LocalCache) ReleaseIdempotency(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, idempotencyKeyPrefix+key)
	return nil
}
