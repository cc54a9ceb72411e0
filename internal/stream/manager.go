package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Manager owns the session-keyed registry of pooled connections. It is the
// only component that mutates connection state; every observer-set change
// funnels through its lock, which is what makes fan-out iteration safe.
type Manager struct {
	cfg     Config
	policy  Policy
	dial    Dialer
	logger  *slog.Logger
	backoff Backoff

	mu           sync.Mutex
	conns        map[string]*pooledConn
	shuttingDown bool
	nextSubID    uint64
	active       bool

	hbWake chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewManager creates a connection manager. A nil dialer falls back to the
// production WebSocket dialer; a nil policy keeps connections warm.
func NewManager(cfg Config, pol Policy, dial Dialer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if dial == nil {
		dial = WebSocketDialer(cfg, logger)
	}
	if pol == nil {
		pol = keepWarmAlways{}
	}

	return &Manager{
		cfg:     cfg,
		policy:  pol,
		dial:    dial,
		logger:  logger,
		backoff: Backoff{Base: cfg.ReconnectBaseDelay, Max: cfg.ReconnectMaxDelay},
		conns:   make(map[string]*pooledConn),
		active:  true,
		hbWake:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

type keepWarmAlways struct{}

func (keepWarmAlways) KeepWarmEnabled() bool { return true }

// Start launches the health monitor. The manager shuts down when ctx is
// cancelled; Shutdown may also be called directly.
func (m *Manager) Start(ctx context.Context) error {
	m.wg.Add(1)
	go m.heartbeatLoop()

	go func() {
		select {
		case <-ctx.Done():
			m.Shutdown()
		case <-m.done:
		}
	}()

	m.logger.Info("stream manager started",
		"max_connections", m.cfg.MaxConnections,
		"heartbeat_interval", m.cfg.HeartbeatInterval,
	)
	return nil
}

// Connect attaches an observer to the session's connection, opening the
// underlying stream if needed. If an open attempt is already in flight the
// caller waits for its outcome instead of opening a second socket.
func (m *Manager) Connect(ctx context.Context, sessionID string, fn Observer) (*Subscription, error) {
	sub, _, err := m.connect(ctx, sessionID, fn, false)
	return sub, err
}

// ConnectWithReplay attaches an observer and captures the replay snapshot
// in the same critical section as the registration. Every buffered byte
// reaches the caller exactly once: output appended before the registration
// is in the snapshot, frames dispatched after it arrive through the
// observer. Callers bridging a terminal should use this instead of a
// separate Snapshot call, which would leave a window where frames land in
// neither.
func (m *Manager) ConnectWithReplay(ctx context.Context, sessionID string, fn Observer) (*Subscription, []byte, error) {
	return m.connect(ctx, sessionID, fn, true)
}

func (m *Manager) connect(ctx context.Context, sessionID string, fn Observer, withReplay bool) (*Subscription, []byte, error) {
	m.mu.Lock()
	if m.shuttingDown {
		m.mu.Unlock()
		return nil, nil, ErrShuttingDown
	}

	c, ok := m.conns[sessionID]
	if ok && c.status == StatusOpen {
		m.nextSubID++
		sub := c.addSub(m.nextSubID, fn)
		var snap []byte
		if withReplay {
			snap = c.buffer.Snapshot()
		}
		m.mu.Unlock()
		return sub, snap, nil
	}

	if ok {
		// Connecting or Reconnecting: join and wait for the episode.
		if c.ready == nil {
			c.ready = make(chan struct{})
		}
		ready := c.ready
		m.nextSubID++
		sub := c.addSub(m.nextSubID, fn)
		var snap []byte
		if withReplay {
			snap = c.buffer.Snapshot()
		}
		m.mu.Unlock()
		sub, err := m.awaitOpen(ctx, c, sub, ready)
		if err != nil {
			return nil, nil, err
		}
		return sub, snap, nil
	}

	if len(m.conns) >= m.cfg.MaxConnections {
		m.cleanupStale()
		if len(m.conns) >= m.cfg.MaxConnections {
			m.mu.Unlock()
			return nil, nil, ErrCapacityExceeded
		}
	}

	c = newPooledConn(sessionID, m.cfg.BufferMaxBytes)
	m.conns[sessionID] = c
	ready := c.ready
	m.nextSubID++
	sub := c.addSub(m.nextSubID, fn)
	m.mu.Unlock()

	go m.open(c)

	sub, err := m.awaitOpen(ctx, c, sub, ready)
	if err != nil {
		return nil, nil, err
	}
	return sub, nil, nil
}

// awaitOpen suspends the caller until the pending open resolves.
func (m *Manager) awaitOpen(ctx context.Context, c *pooledConn, sub *Subscription, ready <-chan struct{}) (*Subscription, error) {
	select {
	case <-ready:
	case <-ctx.Done():
		m.Disconnect(c.sessionID, sub)
		return nil, ctx.Err()
	}

	m.mu.Lock()
	err := c.openErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// open performs the initial dial for a fresh connection, bounded by the
// connect timeout. Failure destroys the entry and rejects all waiters.
func (m *Manager) open(c *pooledConn) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
	defer cancel()

	st, err := m.dial(ctx, c.sessionID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if c.status != StatusConnecting {
		// Destroyed while dialing (shutdown or eviction).
		if err == nil {
			st.Close()
		}
		return
	}

	if err != nil {
		m.logger.Warn("session open failed", "session", c.sessionID, "error", err)
		if ctx.Err() != nil {
			err = ErrConnectTimeout
		}
		m.destroy(c, err, "open failed")
		return
	}

	m.markOpen(c, st)
}

// markOpen installs a connected stream and starts its read loop.
// Caller holds the lock.
func (m *Manager) markOpen(c *pooledConn, st Stream) {
	c.stream = st
	c.status = StatusOpen
	c.reconnectAttempts = 0
	c.resolveReady(nil)

	stop := make(chan struct{})
	c.readStop = stop
	m.wg.Add(1)
	go m.readLoop(c, st, stop)

	m.logger.Info("session stream open", "session", c.sessionID)

	// Every waiter may have abandoned the connect; apply the empty-set
	// policy so the entry does not linger unobserved forever.
	if len(c.subs) == 0 && c.idleTimer == nil {
		m.handleEmpty(c)
	}
}

// Send writes a frame to the session's stream. Best effort: returns false
// rather than failing, and kicks off reconnection on transport errors.
func (m *Manager) Send(sessionID string, f Frame) bool {
	m.mu.Lock()
	c, ok := m.conns[sessionID]
	if !ok || c.status != StatusOpen || c.stream == nil {
		m.mu.Unlock()
		return false
	}
	st := c.stream
	m.mu.Unlock()

	data, err := json.Marshal(f)
	if err != nil {
		return false
	}

	if err := st.Send(data); err != nil {
		m.logger.Warn("send failed, scheduling reconnect",
			"session", sessionID,
			"error", err,
		)
		m.mu.Lock()
		if c.stream == st {
			m.scheduleReconnect(c)
		}
		m.mu.Unlock()
		return false
	}
	return true
}

// Disconnect removes an observer handle. A nil handle detaches every
// observer for the session. When the set empties, the keep-warm policy is
// read: disabled means immediate teardown, enabled arms the idle timer.
func (m *Manager) Disconnect(sessionID string, sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conns[sessionID]
	if !ok || c.status == StatusDestroyed {
		return
	}

	wasEmpty := len(c.subs) == 0
	if c.removeSub(sub) && !wasEmpty {
		m.handleEmpty(c)
	}
}

// handleEmpty applies the zero-observer policy. Caller holds the lock.
func (m *Manager) handleEmpty(c *pooledConn) {
	c.lastDetachAt = time.Now()

	if !m.policy.KeepWarmEnabled() {
		m.destroy(c, ErrDestroyed, "no observers, keep-warm disabled")
		return
	}

	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	c.idleTimer = time.AfterFunc(m.cfg.IdleTTL, func() {
		m.evictIdle(c)
	})
	m.logger.Debug("idle timer armed", "session", c.sessionID, "ttl", m.cfg.IdleTTL)
}

// evictIdle fires at idle TTL expiry. A join may have raced the timer, so
// the observer set is re-checked before destruction.
func (m *Manager) evictIdle(c *pooledConn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.status == StatusDestroyed || len(c.subs) > 0 {
		return
	}
	m.destroy(c, ErrDestroyed, "idle ttl expired")
}

// Snapshot returns the concatenated recent output for a session, or nil if
// the session has no connection. Pure read.
func (m *Manager) Snapshot(sessionID string) []byte {
	m.mu.Lock()
	c, ok := m.conns[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return c.buffer.Snapshot()
}

// Stats returns a point-in-time snapshot over all registry entries.
func (m *Manager) Stats() []ConnStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ConnStats, 0, len(m.conns))
	for _, c := range m.conns {
		out = append(out, ConnStats{
			SessionID:         c.sessionID,
			Status:            c.status,
			Observers:         len(c.subs),
			ReconnectAttempts: c.reconnectAttempts,
			BufferBytes:       c.buffer.Bytes(),
			Destroyed:         c.status == StatusDestroyed,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// ConnectionCount returns the number of registry entries.
func (m *Manager) ConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// SetActive retunes the heartbeat cadence for UI activity. Resuming
// activity also triggers one immediate health pass.
func (m *Manager) SetActive(active bool) {
	m.mu.Lock()
	was := m.active
	m.active = active
	m.mu.Unlock()

	if active && !was {
		select {
		case m.hbWake <- struct{}{}:
		default:
		}
	}
}

// Shutdown is idempotent: it rejects future connects, cancels every timer,
// force-closes every stream, and clears the registry in one pass.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.shuttingDown {
		m.mu.Unlock()
		return
	}
	m.shuttingDown = true
	close(m.done)

	for _, c := range m.conns {
		m.destroy(c, ErrShuttingDown, "shutdown")
	}
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("stream manager stopped")
}

// destroy is the single terminal transition. Caller holds the lock.
func (m *Manager) destroy(c *pooledConn, err error, reason string) {
	if c.status == StatusDestroyed {
		return
	}
	c.status = StatusDestroyed
	c.stopTimers()

	if c.readStop != nil {
		close(c.readStop)
		c.readStop = nil
	}
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}
	c.subs = nil
	c.resolveReady(err)
	delete(m.conns, c.sessionID)

	m.logger.Info("connection destroyed", "session", c.sessionID, "reason", reason)
}

// cleanupStale removes entries that are eligible for destruction: dead
// sockets, exhausted reconnects, and long-unobserved warm connections.
// Caller holds the lock.
func (m *Manager) cleanupStale() {
	for _, c := range m.conns {
		switch {
		case c.status == StatusOpen && c.stream != nil && !c.stream.IsConnected():
			m.destroy(c, ErrDestroyed, "stale: socket closed")
		case c.reconnectAttempts >= m.cfg.MaxReconnectAttempts && c.status == StatusReconnecting:
			m.destroy(c, ErrDestroyed, "stale: reconnects exhausted")
		case len(c.subs) == 0 && !c.lastDetachAt.IsZero() && time.Since(c.lastDetachAt) > m.cfg.IdleTTL:
			m.destroy(c, ErrDestroyed, "stale: unobserved past ttl")
		}
	}
}

// scheduleReconnect moves a connection into the reconnect path after an
// unexpected close or failed heartbeat. At most one retry is in flight per
// session. Caller holds the lock.
func (m *Manager) scheduleReconnect(c *pooledConn) {
	if c.status == StatusDestroyed || c.status == StatusConnecting {
		return
	}
	if c.status == StatusReconnecting && c.retryPending {
		return
	}

	// Detach the read loop and drop the dead socket before retrying.
	if c.readStop != nil {
		close(c.readStop)
		c.readStop = nil
	}
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}

	if c.reconnectAttempts >= m.cfg.MaxReconnectAttempts {
		m.destroy(c, ErrDestroyed, "max reconnect attempts exceeded")
		return
	}

	c.status = StatusReconnecting
	if c.ready == nil {
		c.ready = make(chan struct{})
	}
	c.reconnectAttempts++
	c.lastReconnectAt = time.Now()
	c.retryPending = true

	delay := m.backoff.Delay(c.reconnectAttempts)
	c.reconnectTimer = time.AfterFunc(delay, func() {
		m.retry(c)
	})

	m.logger.Info("reconnect scheduled",
		"session", c.sessionID,
		"attempt", c.reconnectAttempts,
		"delay", delay,
	)
}

// retry performs one reconnect attempt. The observer set is carried over;
// success resets the attempt counter.
func (m *Manager) retry(c *pooledConn) {
	m.mu.Lock()
	if c.status != StatusReconnecting || m.shuttingDown {
		m.mu.Unlock()
		return
	}
	c.retryPending = false
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
	defer cancel()

	st, err := m.dial(ctx, c.sessionID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if c.status != StatusReconnecting {
		if err == nil {
			st.Close()
		}
		return
	}

	if err != nil {
		m.logger.Warn("reconnect attempt failed",
			"session", c.sessionID,
			"attempt", c.reconnectAttempts,
			"error", err,
		)
		m.scheduleReconnect(c)
		return
	}

	m.logger.Info("session reconnected",
		"session", c.sessionID,
		"attempts", c.reconnectAttempts,
	)
	m.markOpen(c, st)
}

// readLoop pumps one stream's frames into the dispatcher until the stream
// fails, the loop is detached, or the manager shuts down.
func (m *Manager) readLoop(c *pooledConn, st Stream, stop <-chan struct{}) {
	defer m.wg.Done()

	for {
		select {
		case <-stop:
			return
		case <-m.done:
			return
		case err := <-st.Errors():
			m.logger.Warn("stream error",
				"session", c.sessionID,
				"error", err,
			)
			m.mu.Lock()
			if c.stream == st {
				m.scheduleReconnect(c)
			}
			m.mu.Unlock()
			return
		case data := <-st.Messages():
			m.dispatch(c, st, data)
		}
	}
}

// dispatch decodes one inbound frame, consumes control traffic, appends
// observable output to the replay buffer, and fans the frame out to a
// stable snapshot of the observer set. A bad frame or a panicking observer
// never tears down the connection.
func (m *Manager) dispatch(c *pooledConn, st Stream, data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		m.logger.Warn("dropping unparseable frame",
			"session", c.sessionID,
			"error", err,
		)
		return
	}

	switch f.Type {
	case FramePong:
		// Heartbeat acknowledgment: consume without forwarding.
		return
	case FramePing:
		if reply, err := json.Marshal(Frame{Type: FramePong}); err == nil {
			st.Send(reply)
		}
		return
	case FrameData, FrameResize:
	default:
		if f.Data == "" {
			m.logger.Debug("dropping unknown frame",
				"session", c.sessionID,
				"type", f.Type,
			)
			return
		}
		// Unknown type with payload: treat as opaque data.
	}

	m.mu.Lock()
	if c.status == StatusDestroyed {
		m.mu.Unlock()
		return
	}
	if f.Data != "" {
		c.buffer.Append([]byte(f.Data))
	}
	subs := c.snapshotSubs()
	m.mu.Unlock()

	for _, s := range subs {
		m.deliver(c.sessionID, s, f)
	}
}

// deliver invokes one observer, isolating its failures from siblings.
func (m *Manager) deliver(sessionID string, s *Subscription, f Frame) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("observer callback panicked",
				"session", sessionID,
				"panic", r,
			)
		}
	}()
	s.fn(f)
}

// heartbeatLoop pings every open connection on the configured cadence and
// reconnects entries whose sockets died silently.
func (m *Manager) heartbeatLoop() {
	defer m.wg.Done()

	timer := time.NewTimer(m.currentInterval())
	defer timer.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-m.hbWake:
			m.healthPass()
		case <-timer.C:
			m.healthPass()
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(m.currentInterval())
	}
}

func (m *Manager) currentInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active && m.cfg.InactiveHeartbeatInterval > 0 {
		return m.cfg.InactiveHeartbeatInterval
	}
	return m.cfg.HeartbeatInterval
}

// healthPass probes every open connection once.
func (m *Manager) healthPass() {
	type probe struct {
		c  *pooledConn
		st Stream
	}

	m.mu.Lock()
	probes := make([]probe, 0, len(m.conns))
	for _, c := range m.conns {
		if c.status == StatusOpen && c.stream != nil {
			probes = append(probes, probe{c: c, st: c.stream})
		}
	}
	m.mu.Unlock()

	ping, err := json.Marshal(Frame{Type: FramePing})
	if err != nil {
		return
	}

	for _, p := range probes {
		if !p.st.IsConnected() {
			m.mu.Lock()
			if p.c.stream == p.st {
				m.logger.Warn("socket closed unexpectedly", "session", p.c.sessionID)
				m.scheduleReconnect(p.c)
			}
			m.mu.Unlock()
			continue
		}

		if err := p.st.Send(ping); err != nil {
			m.mu.Lock()
			if p.c.stream == p.st {
				m.logger.Warn("heartbeat send failed",
					"session", p.c.sessionID,
					"error", err,
				)
				m.scheduleReconnect(p.c)
			}
			m.mu.Unlock()
		}
	}
}
