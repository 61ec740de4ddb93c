package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/syntrixbase/warden/internal/events"
)

// opDispatch marks frames that carry an event. Heartbeat acks, hellos and
// other control frames are skipped.
const opDispatch = 0

// WebSocketOptions configures a direct gateway connection.
type WebSocketOptions struct {
	URL              string
	Token            string
	HandshakeTimeout time.Duration
	Logger           *slog.Logger
}

type frame struct {
	Op       int             `json:"op"`
	Kind     events.Kind     `json:"t"`
	Sequence int64           `json:"s"`
	Data     json.RawMessage `json:"d"`
}

type dispatchHeader struct {
	ID      string `json:"id"`
	GuildID string `json:"guild_id"`
}

// WebSocketSource reads dispatch frames from a gateway WebSocket. A read
// failure drops the connection; the next call to Next redials.
type WebSocketSource struct {
	opts   WebSocketOptions
	dialer *websocket.Dialer
	logger *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	seq    int64
	closed bool
}

var _ Source = (*WebSocketSource)(nil)

// NewWebSocketSource validates opts. The connection is dialed lazily by Next.
func NewWebSocketSource(opts WebSocketOptions) (*WebSocketSource, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("websocket url is required")
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketSource{
		opts:   opts,
		dialer: &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
		logger: logger.With("component", "websocket-source"),
	}, nil
}

// Next blocks until a dispatch frame arrives.
func (s *WebSocketSource) Next(ctx context.Context) (*events.Event, error) {
	for {
		conn, err := s.connection(ctx)
		if err != nil {
			return nil, err
		}

		// ReadMessage does not take a context; closing the conn unblocks it.
		stop := context.AfterFunc(ctx, func() { conn.Close() })
		_, data, err := conn.ReadMessage()
		stop()
		if err != nil {
			s.drop(conn)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read gateway frame: %w", err)
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.logger.Warn("skipping malformed frame", "error", err)
			continue
		}
		if f.Op != opDispatch {
			continue
		}

		var hdr dispatchHeader
		if len(f.Data) > 0 {
			// Payload shape varies by kind; only the identifiers are lifted.
			_ = json.Unmarshal(f.Data, &hdr)
		}

		s.mu.Lock()
		if f.Sequence > s.seq {
			s.seq = f.Sequence
		}
		s.mu.Unlock()

		return &events.Event{
			Kind:       f.Kind,
			ID:         hdr.ID,
			GuildID:    hdr.GuildID,
			Payload:    f.Data,
			ReceivedAt: time.Now(),
		}, nil
	}
}

// Sequence returns the highest sequence number seen.
func (s *WebSocketSource) Sequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

func (s *WebSocketSource) connection(ctx context.Context) (*websocket.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, io.EOF
	}
	if s.conn != nil {
		return s.conn, nil
	}

	header := http.Header{}
	if s.opts.Token != "" {
		header.Set("Authorization", "Bot "+s.opts.Token)
	}
	conn, resp, err := s.dialer.DialContext(ctx, s.opts.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("dial gateway %s: %w", s.opts.URL, err)
	}
	s.conn = conn
	s.logger.Info("gateway connected", "url", s.opts.URL)
	return conn, nil
}

func (s *WebSocketSource) drop(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.conn.Close()
		s.conn = nil
	}
}

// Close closes the connection. Subsequent calls to Next return io.EOF.
func (s *WebSocketSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.conn == nil {
		return nil
	}
	err := s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.conn.Close()
	s.conn = nil
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}
