// Package cache holds the shared key/value cache that the bot reads
// guild configuration through and the change watcher evicts from.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMiss is returned when a key is absent or expired.
	ErrMiss = errors.New("cache miss")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("cache is closed")
)

// Store is a byte-valued cache. Delete of absent keys is not an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value; ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// GetOrLoad returns the cached value for key, falling back to load and
// populating the cache on a miss. A failed Set does not fail the read.
func GetOrLoad(ctx context.Context, store Store, key string, ttl time.Duration, load func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	value, err := store.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, ErrMiss) {
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}

	value, err = load(ctx)
	if err != nil {
		return nil, err
	}
	_ = store.Set(ctx, key, value, ttl)
	return value, nil
}

// Loader reads derived entries through a store and populates misses with
// a fixed TTL, so an entry a missed eviction leaves behind still expires.
type Loader struct {
	store Store
	ttl   time.Duration
}

// NewLoader creates a Loader over store. ttl <= 0 disables expiry.
func NewLoader(store Store, ttl time.Duration) *Loader {
	return &Loader{store: store, ttl: ttl}
}

// Get is GetOrLoad with the loader's TTL.
func (l *Loader) Get(ctx context.Context, key string, load func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	return GetOrLoad(ctx, l.store, key, l.ttl, load)
}

// TTL returns the expiry applied to loaded entries.
func (l *Loader) TTL() time.Duration {
	return l.ttl
}
