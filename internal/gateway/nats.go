package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/syntrixbase/warden/internal/events"
)

// NATSOptions configures the JetStream relay source. The gateway relay
// publishes each dispatch frame on <Stream>.<KIND>.
type NATSOptions struct {
	URL      string
	Stream   string
	Consumer string
	// Buffer sizes the hand-off channel between the JetStream callback and Next.
	Buffer int
	Logger *slog.Logger
}

// JetStream is the subset of jetstream.JetStream used by NATSSource.
type JetStream interface {
	CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	CreateOrUpdateConsumer(ctx context.Context, stream string, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error)
}

// JetStreamConnect is a variable to allow mocking in tests.
var JetStreamConnect = func(url string) (*nats.Conn, JetStream, error) {
	nc, err := nats.Connect(url, nats.Name("warden-gateway"))
	if err != nil {
		return nil, nil, err
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	return nc, js, nil
}

// NATSSource consumes gateway events from a durable JetStream consumer.
// Messages are acked once decoded; ownership then passes to the dispatcher.
type NATSSource struct {
	opts   NATSOptions
	logger *slog.Logger

	mu sync.Mutex
	nc *nats.Conn
	js JetStream

	// Current subscription; nil until Next subscribes.
	msgs      chan jetstream.Msg
	errs      chan error
	cc        jetstream.ConsumeContext
	cancelSub context.CancelFunc

	closeCtx  context.Context
	closeFunc context.CancelFunc
}

var _ Source = (*NATSSource)(nil)

// NewNATSSource validates opts. The connection is opened lazily by Next.
func NewNATSSource(opts NATSOptions) (*NATSSource, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	if opts.Stream == "" {
		opts.Stream = "GATEWAY"
	}
	if opts.Consumer == "" {
		opts.Consumer = "warden"
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &NATSSource{
		opts:      opts,
		logger:    logger.With("component", "nats-source", "stream", opts.Stream),
		closeCtx:  ctx,
		closeFunc: cancel,
	}, nil
}

// Next returns the next decoded gateway event.
func (s *NATSSource) Next(ctx context.Context) (*events.Event, error) {
	for {
		msgs, errs, err := s.subscription(ctx)
		if err != nil {
			return nil, err
		}

		select {
		case msg := <-msgs:
			evt, err := s.decode(msg)
			if err != nil {
				s.logger.Warn("dropping undecodable gateway message", "subject", msg.Subject(), "error", err)
				_ = msg.Term()
				continue
			}
			if err := msg.Ack(); err != nil {
				s.logger.Warn("failed to ack gateway message", "subject", msg.Subject(), "error", err)
			}
			return evt, nil

		case err := <-errs:
			s.reset()
			return nil, fmt.Errorf("jetstream consumer: %w", err)

		case <-s.closeCtx.Done():
			return nil, io.EOF

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *NATSSource) decode(msg jetstream.Msg) (*events.Event, error) {
	evt, err := events.Decode(msg.Data())
	if err != nil {
		return nil, err
	}
	if evt.Kind == "" {
		// The relay puts the kind in the last subject token.
		subject := msg.Subject()
		evt.Kind = events.Kind(subject[strings.LastIndex(subject, ".")+1:])
	}
	return evt, nil
}

// subscription returns the live hand-off channels, connecting if needed.
func (s *NATSSource) subscription(ctx context.Context) (<-chan jetstream.Msg, <-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closeCtx.Err() != nil {
		return nil, nil, io.EOF
	}
	if s.msgs != nil {
		return s.msgs, s.errs, nil
	}

	if s.js == nil || (s.nc != nil && s.nc.IsClosed()) {
		nc, js, err := JetStreamConnect(s.opts.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", s.opts.URL, err)
		}
		s.nc, s.js = nc, js
	}
	js := s.js

	subject := s.opts.Stream + ".>"
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     s.opts.Stream,
		Subjects: []string{subject},
		Storage:  jetstream.FileStorage,
	}); err != nil {
		return nil, nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, s.opts.Stream, jetstream.ConsumerConfig{
		Durable:       s.opts.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: subject,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	msgs := make(chan jetstream.Msg, s.opts.Buffer)
	errs := make(chan error, 1)
	subCtx, cancel := context.WithCancel(s.closeCtx)

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		select {
		case msgs <- msg:
		case <-subCtx.Done():
			_ = msg.Nak()
		}
	}, jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
		select {
		case errs <- err:
		default:
		}
	}))
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to start consumer: %w", err)
	}

	s.msgs, s.errs = msgs, errs
	s.cc, s.cancelSub = cc, cancel
	s.logger.Info("gateway consumer subscribed", "consumer", s.opts.Consumer)
	return msgs, errs, nil
}

// reset drops the current subscription so the next call resubscribes.
func (s *NATSSource) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelSub != nil {
		s.cancelSub()
		s.cancelSub = nil
	}
	if s.cc != nil {
		s.cc.Stop()
		s.cc = nil
	}
	s.msgs, s.errs = nil, nil
}

// Close stops consuming and closes the connection.
func (s *NATSSource) Close() error {
	s.closeFunc()
	s.reset()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nc != nil {
		s.nc.Close()
		s.nc = nil
	}
	s.js = nil
	return nil
}
