// Package invalidation evicts derived cache keys for changed documents.
package invalidation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/syntrixbase/warden/internal/cache"
	"github.com/syntrixbase/warden/internal/changelog"
	"github.com/syntrixbase/warden/internal/metrics"
)

// Options configures a Coordinator.
type Options struct {
	// Rules per collection. Nil means DefaultRules.
	Rules   map[string][]Rule
	Metrics metrics.Sink
	Logger  *slog.Logger
}

// Coordinator maps change events to cache keys and deletes them.
// Invalidate is idempotent, so replayed events are harmless.
type Coordinator struct {
	store   cache.Store
	rules   map[string][]Rule
	metrics metrics.Sink
	logger  *slog.Logger
}

// NewCoordinator creates a coordinator evicting from store.
func NewCoordinator(store cache.Store, opts Options) *Coordinator {
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	sink := opts.Metrics
	if sink == nil {
		sink = metrics.Noop{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:   store,
		rules:   rules,
		metrics: sink,
		logger:  logger.With("component", "invalidation"),
	}
}

// Collections returns the collections that have rules, sorted.
func (c *Coordinator) Collections() []string {
	out := make([]string, 0, len(c.rules))
	for coll := range c.rules {
		out = append(out, coll)
	}
	sort.Strings(out)
	return out
}

// Keys returns the sorted union of keys derived from both images of ev.
func (c *Coordinator) Keys(ev *changelog.ChangeEvent) []string {
	rules, ok := c.rules[ev.Collection]
	if !ok {
		return nil
	}

	seen := make(map[string]struct{})
	for _, doc := range []changelog.Document{ev.Before, ev.After} {
		for _, r := range rules {
			if key, ok := r.Key(doc); ok {
				seen[key] = struct{}{}
			}
		}
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Invalidate deletes every key derived from ev. Keys that are not cached
// are not an error.
func (c *Coordinator) Invalidate(ctx context.Context, ev *changelog.ChangeEvent) error {
	if _, ok := c.rules[ev.Collection]; !ok {
		c.logger.Debug("no invalidation rules for collection", "collection", ev.Collection)
		return nil
	}

	keys := c.Keys(ev)
	if len(keys) == 0 {
		return nil
	}

	if err := c.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("evict %d keys for %s: %w", len(keys), ev.Collection, err)
	}

	c.metrics.AddCacheEvictions(ev.Collection, len(keys))
	c.logger.Debug("cache keys evicted",
		"collection", ev.Collection,
		"operation", ev.Operation,
		"keys", keys,
	)
	return nil
}
