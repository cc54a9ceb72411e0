package stream

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Stream is the full-duplex, message-oriented transport primitive owned by
// a pooled connection. The Manager only ever talks to a session through
// this interface; tests substitute fakes via the Dialer hook.
type Stream interface {
	// Connect establishes the underlying socket.
	Connect(ctx context.Context) error

	// Close gracefully closes the socket with a normal-closure code.
	Close() error

	// Send writes raw bytes. Fails if the socket is not open.
	Send(data []byte) error

	// Messages returns the channel of raw inbound frames.
	Messages() <-chan []byte

	// Errors returns the channel of transport failures.
	Errors() <-chan error

	// IsConnected reports current socket state.
	IsConnected() bool
}

// Dialer produces a connected Stream for a session. The default dialer
// opens a WebSocket against the configured agent host.
type Dialer func(ctx context.Context, sessionID string) (Stream, error)

// SessionURL builds the stream endpoint for a session on an agent host.
func SessionURL(baseURL, sessionID string) string {
	return fmt.Sprintf("%s/sessions/%s/stream",
		strings.TrimSuffix(baseURL, "/"),
		url.PathEscape(sessionID),
	)
}

// WebSocketDialer returns the production Dialer for the given config.
func WebSocketDialer(cfg Config, logger *slog.Logger) Dialer {
	return func(ctx context.Context, sessionID string) (Stream, error) {
		ws := NewWebSocketStream(SessionURL(cfg.BaseURL, sessionID), cfg, logger)
		if err := ws.Connect(ctx); err != nil {
			return nil, err
		}
		return ws, nil
	}
}

// wsStream implements Stream over gorilla/websocket.
type wsStream struct {
	url    string
	cfg    Config
	logger *slog.Logger

	conn *websocket.Conn

	// Output channels
	messages chan []byte
	errors   chan error
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu        sync.RWMutex
	connected bool
	closed    bool
}

// NewWebSocketStream creates an unconnected WebSocket stream.
func NewWebSocketStream(url string, cfg Config, logger *slog.Logger) Stream {
	if logger == nil {
		logger = slog.Default()
	}
	bufSize := cfg.MessageBufferSize
	if bufSize < 1 {
		bufSize = 1
	}

	return &wsStream{
		url:      url,
		cfg:      cfg,
		logger:   logger,
		messages: make(chan []byte, bufSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect dials the WebSocket endpoint.
func (s *wsStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrAlreadyClosed
	}
	s.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: s.cfg.ConnectTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	// Answer protocol-level pings so intermediaries keep the socket alive.
	conn.SetPingHandler(func(data string) error {
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	go s.readLoop()

	s.logger.Debug("stream connected", "url", s.url)
	return nil
}

// Close gracefully closes the socket.
func (s *wsStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.connected = false
	s.mu.Unlock()

	close(s.done)

	if s.conn != nil {
		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return s.conn.Close()
	}
	return nil
}

// Send writes raw bytes to the socket.
func (s *wsStream) Send(data []byte) error {
	s.mu.RLock()
	if !s.connected {
		s.mu.RUnlock()
		return ErrNotConnected
	}
	s.mu.RUnlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Messages returns the inbound frame channel.
func (s *wsStream) Messages() <-chan []byte {
	return s.messages
}

// Errors returns the transport failure channel.
func (s *wsStream) Errors() <-chan error {
	return s.errors
}

// IsConnected reports the current socket state.
func (s *wsStream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// readLoop reads frames from the socket into the messages channel.
func (s *wsStream) readLoop() {
	defer func() {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			// Errors after Close() are expected; swallow them.
			select {
			case <-s.done:
				return
			default:
				select {
				case s.errors <- err:
				default:
				}
				return
			}
		}

		select {
		case s.messages <- data:
		case <-s.done:
			return
		default:
			s.logger.Warn("inbound frame buffer full, dropping frame", "url", s.url)
		}
	}
}
