package port

import (
	"context"
	"time"
)

type CacheRepository interface {
	// AcquireLock takes an exclusive lease on key for ttl. It returns the owner token and
	// false if someone else holds the lease.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)

	// ReleaseLock drops the lease only if token still owns it
	ReleaseLock(ctx context.Context, key, token string) error

	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency drops a key set by SetIdempotency so the request can be made again
	ReleaseIdempotency(ctx context.Context, key string) error
}
