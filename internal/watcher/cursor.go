package watcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/syntrixbase/warden/internal/cache"
)

// CursorStore persists resume cursors per collection.
type CursorStore interface {
	// Load returns nil when no cursor was saved.
	Load(ctx context.Context, collection string) ([]byte, error)
	Save(ctx context.Context, collection string, cursor []byte) error
	Delete(ctx context.Context, collection string) error
}

// CacheCursorStore keeps cursors in the cache store under resume:<collection>
// without expiry.
type CacheCursorStore struct {
	store cache.Store
}

var _ CursorStore = (*CacheCursorStore)(nil)

// NewCacheCursorStore creates a cursor store backed by store.
func NewCacheCursorStore(store cache.Store) *CacheCursorStore {
	return &CacheCursorStore{store: store}
}

// CursorKey returns the cache key holding the cursor for collection. A
// store key prefix, when configured, is applied on top of it.
func CursorKey(collection string) string {
	return "resume:" + collection
}

func (s *CacheCursorStore) Load(ctx context.Context, collection string) ([]byte, error) {
	cursor, err := s.store.Get(ctx, CursorKey(collection))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load cursor: %w", err)
	}
	return cursor, nil
}

func (s *CacheCursorStore) Save(ctx context.Context, collection string, cursor []byte) error {
	if err := s.store.Set(ctx, CursorKey(collection), cursor, 0); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

func (s *CacheCursorStore) Delete(ctx context.Context, collection string) error {
	if err := s.store.Delete(ctx, CursorKey(collection)); err != nil {
		return fmt.Errorf("failed to delete cursor: %w", err)
	}
	return nil
}
