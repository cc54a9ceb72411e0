package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/dmaloney/foreman/internal/stream"
)

const terminalWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The dashboard UI and API share an origin; cross-origin tabs
	// are allowed because there is no auth layer to protect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// terminalSession bridges one browser tab to one pooled stream. Live
// frames that arrive before the replay has been written are held back so
// the tab always sees history before output that followed it.
type terminalSession struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	live    bool
	pending []stream.Frame
}

func (t *terminalSession) writeFrame(f stream.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.ws.SetWriteDeadline(time.Now().Add(terminalWriteTimeout))
	return t.ws.WriteMessage(websocket.TextMessage, data)
}

// observe is the stream observer. Until beginLive runs, frames queue up
// behind the replay; afterwards they go straight to the socket.
func (t *terminalSession) observe(f stream.Frame) {
	t.mu.Lock()
	if !t.live {
		t.pending = append(t.pending, f)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	// Browser side may be gone; the handler's read loop will notice
	// and detach, so write errors are dropped here.
	t.writeFrame(f)
}

// beginLive writes the replay snapshot, flushes frames queued while it
// was pending, and switches the observer to direct writes.
func (t *terminalSession) beginLive(snap []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(snap) > 0 {
		if err := t.writeFrame(stream.Frame{Type: stream.FrameData, Data: string(snap)}); err != nil {
			return err
		}
	}
	for _, f := range t.pending {
		if err := t.writeFrame(f); err != nil {
			return err
		}
	}
	t.pending = nil
	t.live = true
	return nil
}

// handleTerminal upgrades the request and attaches the tab to the
// session's pooled connection. The observer is registered and the replay
// snapshot captured in one step, so output lands in exactly one of the
// two paths; a rejoining tab sees recent history before live frames.
func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sessionID := ps.ByName("id")

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("terminal upgrade failed", "session_id", sessionID, "err", err)
		return
	}
	defer ws.Close()

	term := &terminalSession{ws: ws}

	sub, snap, err := s.streams.ConnectWithReplay(r.Context(), sessionID, term.observe)
	if err != nil {
		s.logger.Warn("terminal connect failed", "session_id", sessionID, "err", err)
		term.writeFrame(stream.Frame{Type: stream.FrameData, Data: "connection failed: " + err.Error() + "\r\n"})
		return
	}
	defer s.streams.Disconnect(sessionID, sub)

	if err := term.beginLive(snap); err != nil {
		s.logger.Warn("terminal replay failed", "session_id", sessionID, "err", err)
		return
	}

	s.logger.Info("terminal attached", "session_id", sessionID)

	// Forward browser input and resize events to the agent.
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				s.logger.Debug("terminal read ended", "session_id", sessionID, "err", err)
			}
			return
		}

		var f stream.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.logger.Warn("terminal frame unparseable", "session_id", sessionID, "err", err)
			continue
		}

		switch f.Type {
		case stream.FrameData, stream.FrameResize:
			s.streams.Send(sessionID, f)
		case stream.FramePing:
			term.writeFrame(stream.Frame{Type: stream.FramePong})
		default:
			// Unknown input from the browser is dropped.
		}
	}
}
