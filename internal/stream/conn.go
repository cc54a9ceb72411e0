package stream

import (
	"time"
)

// Subscription is the handle returned from Connect, used to leave a
// session. Handles avoid relying on callback identity for removal.
type Subscription struct {
	id uint64
	fn Observer
}

// pooledConn holds the state for one session's connection. All fields are
// guarded by the Manager mutex; the ring buffer has its own lock so
// Snapshot stays cheap.
type pooledConn struct {
	sessionID string
	stream    Stream
	status    Status
	subs      []*Subscription
	buffer    *RingBuffer

	// Reconnect episode
	reconnectAttempts int
	lastReconnectAt   time.Time
	retryPending      bool
	reconnectTimer    *time.Timer

	// Idle eviction; armed only while subs is empty.
	idleTimer    *time.Timer
	lastDetachAt time.Time

	// Connecting/Reconnecting completion: closed when the episode
	// resolves, with openErr holding the failure (nil on success).
	ready   chan struct{}
	openErr error

	// Closing readStop detaches the read loop bound to the current stream.
	readStop chan struct{}
}

func newPooledConn(sessionID string, bufferMaxBytes int) *pooledConn {
	return &pooledConn{
		sessionID: sessionID,
		status:    StatusConnecting,
		buffer:    NewRingBuffer(bufferMaxBytes),
		ready:     make(chan struct{}),
	}
}

// addSub registers a new observer handle. Caller holds the manager lock.
func (c *pooledConn) addSub(id uint64, fn Observer) *Subscription {
	sub := &Subscription{id: id, fn: fn}
	c.subs = append(c.subs, sub)

	// A join disarms any pending idle eviction.
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
	return sub
}

// removeSub drops the observer handle; a nil handle detaches everything.
// Returns true if the observer set is now empty. Caller holds the lock.
func (c *pooledConn) removeSub(sub *Subscription) bool {
	if sub == nil {
		c.subs = nil
		return true
	}
	for i, s := range c.subs {
		if s.id == sub.id {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	return len(c.subs) == 0
}

// snapshotSubs copies the observer list so dispatch can iterate without
// the lock; joins and leaves during fan-out see the next frame instead.
func (c *pooledConn) snapshotSubs() []*Subscription {
	out := make([]*Subscription, len(c.subs))
	copy(out, c.subs)
	return out
}

// resolveReady completes the current Connecting/Reconnecting episode.
// Caller holds the lock.
func (c *pooledConn) resolveReady(err error) {
	if c.ready == nil {
		return
	}
	c.openErr = err
	close(c.ready)
	c.ready = nil
}

// stopTimers cancels every pending timer. Caller holds the lock.
func (c *pooledConn) stopTimers() {
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.retryPending = false
}
