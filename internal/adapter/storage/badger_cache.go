package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
)

var errKeyHeld = errors.New("key held")

// BadgerCache keeps leases and idempotency keys in an embedded Badger store.
// It serves a single node that wants them to survive a restart without Redis.
type BadgerCache struct {
	db *badger.DB
}

// OpenBadgerCache opens dir, or an in-memory store when dir is empty.
func OpenBadgerCache(dir string) (*BadgerCache, error) {
	opts := badger.DefaultOptions("")
	if dir == "" {
		opts = opts.WithInMemory(true)
	} else {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolve badger dir: %w", err)
		}
		opts = badger.DefaultOptions(abs)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerCache{db: db}, nil
}

func (c *BadgerCache) Close() error {
	return c.db.Close()
}

// setNX writes key only when it is absent. A concurrent writer that commits
// first wins and the loser sees false.
func (c *BadgerCache) setNX(key, value string, ttl time.Duration) (bool, error) {
	err := c.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		switch {
		case err == nil:
			return errKeyHeld
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.SetEntry(badger.NewEntry([]byte(key), []byte(value)).WithTTL(ttl))
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errKeyHeld), errors.Is(err, badger.ErrConflict):
		return false, nil
	default:
		return false, err
	}
}

func (c *BadgerCache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := c.setNX(lockKeyPrefix+key, token, ttl)
	if err != nil {
		return "", false, fmt.Errorf("badger acquire lock: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (c *BadgerCache) ReleaseLock(ctx context.Context, key, token string) error {
	k := []byte(lockKeyPrefix + key)
	err := c.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		owner, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if string(owner) != token {
			return nil
		}
		return txn.Delete(k)
	})
	if err != nil && !errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("badger release lock: %w", err)
	}
	return nil
}

func (c *BadgerCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := c.setNX(idempotencyKeyPrefix+key, "1", idempotencyKeyTTL)
	if err != nil {
		return false, fmt.Errorf("badger set idempotency: %w", err)
	}
	return ok, nil
}

func (c *BadgerCache) ReleaseIdempotency(ctx context.Context, key string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(idempotencyKeyPrefix + key))
	})
	if err != nil {
		return fmt.Errorf("badger release idempotency: %w", err)
	}
	return nil
}
