package stream

import (
	"errors"
	"time"
)

// Errors surfaced by the Manager contract.
var (
	ErrConnectTimeout   = errors.New("stream: handshake did not complete in time")
	ErrCapacityExceeded = errors.New("stream: connection limit reached")
	ErrShuttingDown     = errors.New("stream: manager is shutting down")
	ErrDestroyed        = errors.New("stream: connection destroyed")
	ErrNotConnected     = errors.New("stream: not connected")
	ErrAlreadyClosed    = errors.New("stream: already closed")
)

// Frame type tags on the session wire protocol.
const (
	FrameData   = "data"
	FrameResize = "resize"
	FramePing   = "ping"
	FramePong   = "pong"
)

// Frame is a single message on a session stream. Unknown types that carry
// a data payload are treated as opaque data frames.
type Frame struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

// Status is the lifecycle state of a pooled connection.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusOpen         Status = "open"
	StatusReconnecting Status = "reconnecting"
	StatusDestroyed    Status = "destroyed"
)

// Observer receives every decoded frame dispatched for a session.
type Observer func(Frame)

// ConnStats is a point-in-time view of one pooled connection.
type ConnStats struct {
	SessionID         string `json:"session_id"`
	Status            Status `json:"status"`
	Observers         int    `json:"observers"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	BufferBytes       int    `json:"buffer_bytes"`
	Destroyed         bool   `json:"destroyed"`
}

// Config configures the Manager. Immutable after construction.
type Config struct {
	BaseURL                   string        // agent host base URL (e.g. ws://127.0.0.1:7333)
	MaxConnections            int           // global connection ceiling
	ConnectTimeout            time.Duration // handshake deadline
	ReconnectBaseDelay        time.Duration // backoff base
	ReconnectMaxDelay         time.Duration // backoff cap
	MaxReconnectAttempts      int           // attempts before giving up on a session
	HeartbeatInterval         time.Duration // health probe cadence while active
	InactiveHeartbeatInterval time.Duration // widened cadence while the UI is inactive
	WriteTimeout              time.Duration // write deadline on the underlying socket
	MessageBufferSize         int           // per-stream inbound channel size
	BufferMaxBytes            int           // replay ring buffer byte budget
	IdleTTL                   time.Duration // how long a zero-observer connection stays warm
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConnections:            32,
		ConnectTimeout:            10 * time.Second,
		ReconnectBaseDelay:        time.Second,
		ReconnectMaxDelay:         30 * time.Second,
		MaxReconnectAttempts:      5,
		HeartbeatInterval:         15 * time.Second,
		InactiveHeartbeatInterval: 60 * time.Second,
		WriteTimeout:              5 * time.Second,
		MessageBufferSize:         1000,
		BufferMaxBytes:            256 * 1024,
		IdleTTL:                   5 * time.Minute,
	}
}

// Policy is the user-setting port consulted when a connection loses its
// last observer: keep it warm for IdleTTL, or tear it down immediately.
type Policy interface {
	KeepWarmEnabled() bool
}
