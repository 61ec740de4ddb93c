// Package services wires the dispatcher, the change watchers and the admin
// listener into one process lifecycle: Init, Start, Shutdown.
package services

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/syntrixbase/warden/internal/cache"
	"github.com/syntrixbase/warden/internal/changelog"
	"github.com/syntrixbase/warden/internal/config"
	"github.com/syntrixbase/warden/internal/dispatch"
	"github.com/syntrixbase/warden/internal/gateway"
	"github.com/syntrixbase/warden/internal/health"
	"github.com/syntrixbase/warden/internal/invalidation"
	"github.com/syntrixbase/warden/internal/metrics"
	"github.com/syntrixbase/warden/internal/watcher"
)

// Options overrides the components Init would otherwise build from config.
type Options struct {
	// Handlers receive dispatched events; nil uses NewHandlers, then
	// LoggingHandlers.
	Handlers dispatch.Handlers
	// NewHandlers builds handlers that read derived entries through the
	// cache with the configured entity TTL.
	NewHandlers func(entities *cache.Loader) dispatch.Handlers
	// Source replaces the configured gateway transport.
	Source gateway.Source
	// Cache replaces the Redis store.
	Cache cache.Store
	// ChangeLog replaces the MongoDB change log.
	ChangeLog changelog.Log
	Logger    *slog.Logger
}

type Manager struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	registry *prometheus.Registry
	metrics  *metrics.Prometheus
	health   *health.Checker

	mongoClient *mongo.Client
	cache       cache.Store
	entities    *cache.Loader
	changeLog   changelog.Log
	source      gateway.Source

	dispatcher  *dispatch.Dispatcher
	coordinator *invalidation.Coordinator
	watchers    *watcher.Group

	servers     []*http.Server
	serverNames []string
	wg          sync.WaitGroup
}

func NewManager(cfg *config.Config, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		opts:   opts,
		logger: logger.With("component", "services"),
	}
}

// Health returns the health checker, available after Init.
func (m *Manager) Health() *health.Checker {
	return m.health
}

// Dispatcher returns the dispatcher, available after Init.
func (m *Manager) Dispatcher() *dispatch.Dispatcher {
	return m.dispatcher
}

// Entities returns the read-through loader, available after Init.
func (m *Manager) Entities() *cache.Loader {
	return m.entities
}

// Registry returns the Prometheus registry, available after Init.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}
