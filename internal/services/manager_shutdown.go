package services

import (
	"context"
)

// Shutdown stops intake first, then the watchers, then closes connections.
// Queued events are not drained; in-flight handlers get the dispatcher's
// drain timeout.
func (m *Manager) Shutdown(ctx context.Context) {
	if m.dispatcher != nil {
		m.logger.Info("stopping dispatcher")
		if err := m.dispatcher.Stop(ctx); err != nil {
			m.logger.Warn("dispatcher stop incomplete", "error", err)
		}
	}

	if m.watchers != nil {
		m.logger.Info("stopping watchers")
		if err := m.watchers.Stop(ctx); err != nil {
			m.logger.Warn("timeout waiting for watchers", "error", err)
		}
	}

	for i, srv := range m.servers {
		m.logger.Info("stopping server", "server", m.serverNames[i])
		if err := srv.Shutdown(ctx); err != nil {
			m.logger.Error("error shutting down server", "server", m.serverNames[i], "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("timeout waiting for servers")
	}

	if m.source != nil {
		if err := m.source.Close(); err != nil {
			m.logger.Warn("error closing gateway source", "error", err)
		}
	}
	if m.cache != nil {
		if err := m.cache.Close(); err != nil {
			m.logger.Warn("error closing cache", "error", err)
		}
	}
	if m.mongoClient != nil {
		if err := m.mongoClient.Disconnect(ctx); err != nil {
			m.logger.Warn("error disconnecting mongo", "error", err)
		}
	}
	m.logger.Info("shutdown complete")
}
