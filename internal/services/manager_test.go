package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/warden/internal/cache"
	"github.com/syntrixbase/warden/internal/changelog"
	"github.com/syntrixbase/warden/internal/config"
	"github.com/syntrixbase/warden/internal/dispatch"
	"github.com/syntrixbase/warden/internal/events"
	"github.com/syntrixbase/warden/internal/gateway"
)

// chanLog serves every Open from one shared channel.
type chanLog struct {
	ch chan *changelog.ChangeEvent
}

func (l *chanLog) Open(ctx context.Context, collection string, cursor []byte) (changelog.Stream, error) {
	return &chanStream{ch: l.ch}, nil
}

type chanStream struct {
	ch chan *changelog.ChangeEvent
}

func (s *chanStream) Next(ctx context.Context) (*changelog.ChangeEvent, error) {
	select {
	case ev := <-s.ch:
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *chanStream) Close(context.Context) error { return nil }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Mongo.Collections = []string{"channels"}
	cfg.Admin.Listen = "127.0.0.1:0"
	cfg.Dispatch.DrainTimeout = time.Second
	return cfg
}

func TestManager_EndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := cache.NewMemoryStore()
	require.NoError(t, store.Set(ctx, "channel:c1", []byte("cached"), 0))
	source := gateway.NewChannelSource(8)
	log := &chanLog{ch: make(chan *changelog.ChangeEvent, 1)}

	var mu sync.Mutex
	var handled []events.Kind
	record := func(ctx context.Context, evt *events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, evt.Kind)
		return nil
	}

	m := NewManager(testConfig(), Options{
		Handlers: dispatch.Handlers{
			events.PriorityHigh:   record,
			events.PriorityNormal: record,
			events.PriorityLow:    record,
		},
		Source:    source,
		Cache:     store,
		ChangeLog: log,
	})
	require.NoError(t, m.Init(ctx))
	require.NotNil(t, m.Health())
	require.NotNil(t, m.Dispatcher())
	require.NotNil(t, m.Registry())

	m.Start(ctx)

	require.NoError(t, source.Publish(ctx, &events.Event{Kind: events.KindInteractionCreate}))
	require.NoError(t, source.Publish(ctx, &events.Event{Kind: events.KindTypingStart}))
	require.NoError(t, source.Publish(ctx, &events.Event{Kind: events.KindMessageDelete}))

	log.ch <- &changelog.ChangeEvent{
		Collection: "channels",
		Operation:  changelog.OperationDelete,
		Before:     changelog.Document{"_id": "c1"},
		Cursor:     []byte("tok"),
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(handled) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		_, err := store.Get(context.Background(), "channel:c1")
		return errors.Is(err, cache.ErrMiss)
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.ElementsMatch(t, []events.Kind{events.KindInteractionCreate, events.KindMessageDelete}, handled)
	mu.Unlock()

	// Admin routes.
	require.Len(t, m.servers, 1)
	rec := httptest.NewRecorder()
	m.servers[0].Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"collection":"channels"`)

	rec = httptest.NewRecorder()
	m.servers[0].Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "warden_"), "custom metrics exported")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	m.Shutdown(shutdownCtx)

	_, err := source.Next(context.Background())
	assert.Error(t, err, "source closed on shutdown")
}

func TestManager_InitBadRules(t *testing.T) {
	cfg := testConfig()
	cfg.Watcher.Rules = map[string][]string{"channels": {"channel:{_id"}}

	m := NewManager(cfg, Options{
		Source:    gateway.NewChannelSource(1),
		Cache:     cache.NewMemoryStore(),
		ChangeLog: &chanLog{ch: make(chan *changelog.ChangeEvent)},
	})
	err := m.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalidation rules")
}

func TestManager_InitRedisUnavailable(t *testing.T) {
	cfg := testConfig()
	cfg.Redis.Addr = "127.0.0.1:1"

	m := NewManager(cfg, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := m.Init(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to init cache")
}

func TestManager_HandlersReadThroughEntityTTL(t *testing.T) {
	cfg := testConfig()
	cfg.Admin.Listen = ""
	cfg.Redis.EntityTTL = 5 * time.Minute
	store := cache.NewMemoryStore()

	var got *cache.Loader
	m := NewManager(cfg, Options{
		NewHandlers: func(entities *cache.Loader) dispatch.Handlers {
			got = entities
			return LoggingHandlers(nil)
		},
		Source:    gateway.NewChannelSource(1),
		Cache:     store,
		ChangeLog: &chanLog{ch: make(chan *changelog.ChangeEvent)},
	})
	require.NoError(t, m.Init(context.Background()))
	defer m.Shutdown(context.Background())

	require.NotNil(t, got)
	assert.Same(t, m.Entities(), got)
	assert.Equal(t, 5*time.Minute, got.TTL())

	v, err := got.Get(context.Background(), "guild:g1:settings", func(context.Context) ([]byte, error) {
		return []byte("settings"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "settings", string(v))

	cached, err := store.Get(context.Background(), "guild:g1:settings")
	require.NoError(t, err)
	assert.Equal(t, "settings", string(cached))
}

func TestManager_ShutdownBeforeInit(t *testing.T) {
	m := NewManager(testConfig(), Options{})
	assert.NotPanics(t, func() { m.Shutdown(context.Background()) })
}

func TestLoggingHandlers(t *testing.T) {
	h := LoggingHandlers(nil)
	require.Len(t, h, 3)
	for _, p := range events.ServedPriorities {
		require.Contains(t, h, p)
		assert.NoError(t, h[p](context.Background(), &events.Event{Kind: events.KindReady}))
	}
}
