package services

import (
	"context"
	"errors"
	"net/http"
)

// Start launches the admin listener, the dispatcher and the watchers.
// Everything stops when ctx is cancelled or Shutdown is called.
func (m *Manager) Start(bgCtx context.Context) {
	for i, srv := range m.servers {
		m.wg.Add(1)
		go func(s *http.Server, name string) {
			defer m.wg.Done()
			m.logger.Info("listening", "server", name, "addr", s.Addr)
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				m.logger.Error("server error", "server", name, "error", err)
			}
		}(srv, m.serverNames[i])
	}

	m.dispatcher.Start(bgCtx)
	m.watchers.Start(bgCtx)
	m.logger.Info("services started", "collections", len(m.watchers.Watchers()))
}
