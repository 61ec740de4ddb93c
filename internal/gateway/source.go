// Package gateway provides the upstream event sources feeding the dispatcher:
// a NATS JetStream relay, a direct WebSocket gateway connection and an
// in-memory channel.
package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/syntrixbase/warden/internal/events"
)

// Source is an ordered, possibly failing stream of gateway events.
// Next returns io.EOF when the underlying stream terminated; the following
// call reconnects.
type Source interface {
	Next(ctx context.Context) (*events.Event, error)
	Close() error
}

// Transport names accepted by Options.Transport.
const (
	TransportNATS      = "nats"
	TransportWebSocket = "websocket"
	TransportMemory    = "memory"
)

// Options selects and configures a source.
type Options struct {
	Transport string
	NATS      NATSOptions
	WebSocket WebSocketOptions
	// MemoryBuffer sizes the in-memory source channel.
	MemoryBuffer int
	Logger       *slog.Logger
}

// NewSource builds the source named by opts.Transport.
func NewSource(opts Options) (Source, error) {
	switch opts.Transport {
	case TransportNATS:
		if opts.NATS.Logger == nil {
			opts.NATS.Logger = opts.Logger
		}
		src, err := NewNATSSource(opts.NATS)
		if err != nil {
			return nil, err
		}
		return src, nil
	case TransportWebSocket:
		if opts.WebSocket.Logger == nil {
			opts.WebSocket.Logger = opts.Logger
		}
		src, err := NewWebSocketSource(opts.WebSocket)
		if err != nil {
			return nil, err
		}
		return src, nil
	case TransportMemory, "":
		return NewChannelSource(opts.MemoryBuffer), nil
	default:
		return nil, fmt.Errorf("unknown gateway transport %q", opts.Transport)
	}
}
