package gateway

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/syntrixbase/warden/internal/events"
)

// ErrSourceClosed is returned when publishing to a closed channel source.
var ErrSourceClosed = errors.New("source is closed")

// ChannelSource is an in-memory Source fed through Publish.
type ChannelSource struct {
	ch        chan *events.Event
	closed    chan struct{}
	closeOnce sync.Once
}

var _ Source = (*ChannelSource)(nil)

// NewChannelSource creates an in-memory source buffering up to size events.
func NewChannelSource(size int) *ChannelSource {
	if size < 0 {
		size = 0
	}
	return &ChannelSource{
		ch:     make(chan *events.Event, size),
		closed: make(chan struct{}),
	}
}

// Publish hands evt to the consumer, blocking while the buffer is full.
func (s *ChannelSource) Publish(ctx context.Context, evt *events.Event) error {
	select {
	case <-s.closed:
		return ErrSourceClosed
	default:
	}

	select {
	case s.ch <- evt:
		return nil
	case <-s.closed:
		return ErrSourceClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next published event, or io.EOF after Close.
func (s *ChannelSource) Next(ctx context.Context) (*events.Event, error) {
	select {
	case evt := <-s.ch:
		return evt, nil
	case <-s.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close terminates the source.
func (s *ChannelSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	return nil
}
