package watcher

import (
	"context"
	"fmt"
	"sync"
)

// Group runs one watcher per collection.
type Group struct {
	watchers []*Watcher

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGroup creates watchers for collections sharing base options.
func NewGroup(collections []string, base Options) (*Group, error) {
	seen := make(map[string]bool, len(collections))
	g := &Group{}
	for _, coll := range collections {
		if seen[coll] {
			return nil, fmt.Errorf("collection %s listed twice", coll)
		}
		seen[coll] = true

		opts := base
		opts.Collection = coll
		w, err := New(opts)
		if err != nil {
			return nil, fmt.Errorf("watcher %s: %w", coll, err)
		}
		g.watchers = append(g.watchers, w)
	}
	return g, nil
}

// Watchers returns the watchers in the group.
func (g *Group) Watchers() []*Watcher {
	return g.watchers
}

// Start launches every watcher in its own goroutine.
func (g *Group) Start(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		return
	}

	ctx, g.cancel = context.WithCancel(ctx)
	for _, w := range g.watchers {
		g.wg.Add(1)
		go func(w *Watcher) {
			defer g.wg.Done()
			_ = w.Run(ctx)
		}(w)
	}
}

// Stop cancels all watchers and waits for them to exit or ctx to expire.
func (g *Group) Stop(ctx context.Context) error {
	g.mu.Lock()
	cancel := g.cancel
	g.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
