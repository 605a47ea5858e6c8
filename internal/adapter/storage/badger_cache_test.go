package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBadger(t *testing.T) *BadgerCache {
	t.Helper()
	c, err := OpenBadgerCache("")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestBadgerCache_Lock(t *testing.T) {
	ctx := context.Background()
	c := newBadger(t)

	token, ok, err := c.AcquireLock(ctx, "sweep:t1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = c.AcquireLock(ctx, "sweep:t1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.ReleaseLock(ctx, "sweep:t1", "someone-else"))
	_, ok, _ = c.AcquireLock(ctx, "sweep:t1", time.Minute)
	assert.False(t, ok, "a foreign token must not release the lease")

	require.NoError(t, c.ReleaseLock(ctx, "sweep:t1", token))
	_, ok, _ = c.AcquireLock(ctx, "sweep:t1", time.Minute)
	assert.True(t, ok)

	// releasing a missing lease is a no-op
	require.NoError(t, c.ReleaseLock(ctx, "sweep:nobody", "x"))
}

func TestBadgerCache_LockExpires(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a TTL")
	}
	ctx := context.Background()
	c := newBadger(t)

	_, ok, _ := c.AcquireLock(ctx, "sweep:t1", time.Second)
	require.True(t, ok)

	time.Sleep(2100 * time.Millisecond)
	_, ok, err := c.AcquireLock(ctx, "sweep:t1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBadgerCache_Idempotency(t *testing.T) {
	ctx := context.Background()
	c := newBadger(t)

	var first atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.SetIdempotency(ctx, "route:t1:o1")
			assert.NoError(t, err)
			if ok {
				first.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), first.Load())

	_, ok, _ := c.AcquireLock(ctx, "route:t1:o1", time.Minute)
	assert.True(t, ok)
}

func TestBadgerCache_ReleaseIdempotency(t *testing.T) {
	ctx := context.Background()
	c := newBadger(t)

	ok, err := c.SetIdempotency(ctx, "route:t1:o1")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.ReleaseIdempotency(ctx, "route:t1:o1"))
	require.NoError(t, c.ReleaseIdempotency(ctx, "route:t1:missing"))

	ok, err = c.SetIdempotency(ctx, "route:t1:o1")
	require.NoError(t, err)
	assert.True(t, ok)
}
