package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/syntrixbase/warden/internal/cache"
	"github.com/syntrixbase/warden/internal/changelog"
	"github.com/syntrixbase/warden/internal/dispatch"
	"github.com/syntrixbase/warden/internal/events"
	"github.com/syntrixbase/warden/internal/gateway"
	"github.com/syntrixbase/warden/internal/health"
	"github.com/syntrixbase/warden/internal/invalidation"
	"github.com/syntrixbase/warden/internal/metrics"
	"github.com/syntrixbase/warden/internal/watcher"
)

// Init builds every component. External connections are verified here so
// misconfiguration fails before Start.
func (m *Manager) Init(ctx context.Context) error {
	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m.metrics = metrics.NewPrometheus(m.registry)
	m.health = health.NewChecker(m.logger)

	if err := m.initCache(ctx); err != nil {
		return err
	}
	if err := m.initChangeLog(ctx); err != nil {
		return err
	}
	if err := m.initSource(); err != nil {
		return err
	}
	if err := m.initDispatcher(); err != nil {
		return err
	}
	if err := m.initWatchers(); err != nil {
		return err
	}
	m.initAdminServer()
	return nil
}

func (m *Manager) initCache(ctx context.Context) error {
	if m.opts.Cache != nil {
		m.cache = m.opts.Cache
		m.entities = cache.NewLoader(m.cache, m.cfg.Redis.EntityTTL)
		return nil
	}

	rc := m.cfg.Redis
	store, err := cache.NewRedisStore(ctx, cache.RedisOptions{
		Addr:      rc.Addr,
		Username:  rc.Username,
		Password:  rc.Password,
		DB:        rc.DB,
		PoolSize:  rc.PoolSize,
		KeyPrefix: rc.KeyPrefix,
	})
	if err != nil {
		return fmt.Errorf("failed to init cache: %w", err)
	}
	m.cache = store
	m.entities = cache.NewLoader(store, rc.EntityTTL)
	m.logger.Info("cache connected", "addr", rc.Addr, "entity_ttl", rc.EntityTTL)
	return nil
}

func (m *Manager) initChangeLog(ctx context.Context) error {
	if m.opts.ChangeLog != nil {
		m.changeLog = m.opts.ChangeLog
		return nil
	}

	mc := m.cfg.Mongo
	connectCtx, cancel := context.WithTimeout(ctx, mc.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(mc.URI).SetConnectTimeout(mc.ConnectTimeout))
	if err != nil {
		return fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("failed to ping mongo: %w", err)
	}

	cl := changelog.NewMongoLog(client.Database(mc.Database), m.logger)
	if mc.EnablePreImages {
		if err := cl.EnablePreImages(ctx, mc.Collections); err != nil {
			_ = client.Disconnect(context.Background())
			return fmt.Errorf("failed to init change log: %w", err)
		}
	} else {
		m.logger.Warn("change stream pre-images not enabled by warden; updates evict only new-image keys unless the collections already have them",
			"collections", mc.Collections)
	}

	m.mongoClient = client
	m.changeLog = cl
	m.logger.Info("document store connected", "database", mc.Database)
	return nil
}

func (m *Manager) initSource() error {
	if m.opts.Source != nil {
		m.source = m.opts.Source
		return nil
	}

	gc := m.cfg.Gateway
	src, err := gateway.NewSource(gateway.Options{
		Transport: gc.Transport,
		NATS: gateway.NATSOptions{
			URL:      gc.NATS.URL,
			Stream:   gc.NATS.Stream,
			Consumer: gc.NATS.Consumer,
			Buffer:   gc.NATS.Buffer,
		},
		WebSocket: gateway.WebSocketOptions{
			URL:              gc.WebSocket.URL,
			Token:            gc.WebSocket.Token,
			HandshakeTimeout: gc.WebSocket.HandshakeTimeout,
		},
		MemoryBuffer: gc.MemoryBuffer,
		Logger:       m.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to init gateway source: %w", err)
	}
	m.source = src
	return nil
}

func (m *Manager) initDispatcher() error {
	dc := m.cfg.Dispatch
	handlers := m.opts.Handlers
	if handlers == nil && m.opts.NewHandlers != nil {
		handlers = m.opts.NewHandlers(m.entities)
	}
	if handlers == nil {
		handlers = LoggingHandlers(m.logger)
	}

	d, err := dispatch.New(m.source, handlers, dispatch.Options{
		Classes: map[events.Priority]dispatch.ClassOptions{
			events.PriorityHigh:   {QueueCapacity: dc.High.QueueCapacity, Permits: dc.High.Permits},
			events.PriorityNormal: {QueueCapacity: dc.Normal.QueueCapacity, Permits: dc.Normal.Permits},
			events.PriorityLow:    {QueueCapacity: dc.Low.QueueCapacity, Permits: dc.Low.Permits},
		},
		FailureThreshold: dc.FailureThreshold,
		RetryDelay:       dc.RetryDelay,
		DrainTimeout:     dc.DrainTimeout,
		SlowBlock:        dc.SlowBlock,
		CriticalBlock:    dc.CriticalBlock,
		Metrics:          m.metrics,
		Liveness:         m.health,
		Logger:           m.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to init dispatcher: %w", err)
	}
	m.dispatcher = d
	return nil
}

func (m *Manager) initWatchers() error {
	var rules map[string][]invalidation.Rule
	if len(m.cfg.Watcher.Rules) > 0 {
		parsed, err := invalidation.ParseRules(m.cfg.Watcher.Rules)
		if err != nil {
			return fmt.Errorf("failed to parse invalidation rules: %w", err)
		}
		rules = parsed
	}

	m.coordinator = invalidation.NewCoordinator(m.cache, invalidation.Options{
		Rules:   rules,
		Metrics: m.metrics,
		Logger:  m.logger,
	})

	group, err := watcher.NewGroup(m.cfg.Mongo.Collections, watcher.Options{
		Log:            m.changeLog,
		Invalidator:    m.coordinator,
		Cursors:        watcher.NewCacheCursorStore(m.cache),
		InitialBackoff: m.cfg.Watcher.InitialBackoff,
		MaxBackoff:     m.cfg.Watcher.MaxBackoff,
		Metrics:        m.metrics,
		Reporter:       m.health,
		Logger:         m.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to init watchers: %w", err)
	}
	m.watchers = group
	return nil
}

func (m *Manager) initAdminServer() {
	if m.cfg.Admin.Listen == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", m.health)
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry}))

	m.servers = append(m.servers, &http.Server{
		Addr:              m.cfg.Admin.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	})
	m.serverNames = append(m.serverNames, "Admin Server")
}
