package services

import (
	"context"
	"log/slog"

	"github.com/syntrixbase/warden/internal/dispatch"
	"github.com/syntrixbase/warden/internal/events"
)

// LoggingHandlers returns handlers that only log the events they receive.
// Deployments embedding the dispatcher supply their own.
func LoggingHandlers(logger *slog.Logger) dispatch.Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "handler")

	handlers := make(dispatch.Handlers, len(events.ServedPriorities))
	for _, p := range events.ServedPriorities {
		priority := p
		handlers[p] = func(ctx context.Context, evt *events.Event) error {
			logger.Debug("event handled",
				"priority", priority.String(),
				"kind", evt.Kind,
				"guild_id", evt.GuildID,
				"id", evt.ID,
			)
			return nil
		}
	}
	return handlers
}
