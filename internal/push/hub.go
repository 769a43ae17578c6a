// Package push manages live WebSocket sessions and the best-effort event
// channel to them. Delivery is fire-and-forget: a slow or gone client
// loses events, never blocks the sender.
package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dddanielliu/emotion-light-sound/internal/logger"
	"github.com/dddanielliu/emotion-light-sound/internal/metrics"
)

// ErrNoSession is returned when pushing to a session that is not attached.
var ErrNoSession = errors.New("push: no such session")

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
)

// Envelope is the wire format for pushed events.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Session is one attached client.
type Session struct {
	ID string

	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

// Hub tracks attached sessions by id.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*Session
	buffer   int
	metrics  *metrics.Metrics
	onDetach func(sessionID string)
}

// NewHub creates a hub whose sessions buffer up to buffer outbound events.
func NewHub(buffer int, m *metrics.Metrics) *Hub {
	if buffer <= 0 {
		buffer = 4
	}
	return &Hub{
		sessions: make(map[string]*Session),
		buffer:   buffer,
		metrics:  m,
	}
}

// SetDetachHook registers a callback invoked with the session id whenever a
// session detaches.
func (h *Hub) SetDetachHook(fn func(sessionID string)) {
	h.mu.Lock()
	h.onDetach = fn
	h.mu.Unlock()
}

// Attach registers a connection as a new session, starts its write loop,
// and announces the assigned session id to the client.
func (h *Hub) Attach(conn *websocket.Conn) *Session {
	s := &Session{
		ID:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.buffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.sessions[s.ID] = s
	count := len(h.sessions)
	h.mu.Unlock()

	h.metrics.TotalSessions.Add(1)
	h.metrics.ActiveSessions.Store(uint64(count))
	logger.Info("Hub", "Session %s attached (active: %d)", s.ID, count)

	go s.writeLoop()
	_ = s.Send("connected", map[string]string{"sid": s.ID})
	return s
}

// Detach removes a session and closes its connection.
func (h *Hub) Detach(s *Session) {
	h.mu.Lock()
	_, ok := h.sessions[s.ID]
	delete(h.sessions, s.ID)
	count := len(h.sessions)
	hook := h.onDetach
	h.mu.Unlock()

	if !ok {
		return
	}
	s.close()
	h.metrics.ActiveSessions.Store(uint64(count))
	logger.Info("Hub", "Session %s detached (active: %d)", s.ID, count)
	if hook != nil {
		hook(s.ID)
	}
}

// Live reports whether a session is currently attached.
func (h *Hub) Live(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.sessions[sessionID]
	return ok
}

// Push sends an event to one session. Failure to deliver is logged and
// counted, never propagated past this boundary.
func (h *Hub) Push(sessionID, event string, payload any) error {
	h.mu.Lock()
	s, ok := h.sessions[sessionID]
	h.mu.Unlock()
	if !ok {
		return ErrNoSession
	}
	return s.Send(event, payload)
}

// Send enqueues one event for the session's write loop. A full buffer
// drops the event.
func (s *Session) Send(event string, payload any) error {
	data, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}

	select {
	case s.send <- data:
		return nil
	case <-s.done:
		s.hub.metrics.PushEventsDropped.Add(1)
		return ErrNoSession
	default:
		// Client too slow, drop this event
		s.hub.metrics.PushEventsDropped.Add(1)
		logger.Debug("Hub", "Session %s send buffer full, dropping %s event", s.ID, event)
		return nil
	}
}

// ReadMessage reads one frame from the client connection.
func (s *Session) ReadMessage() (int, []byte, error) {
	return s.conn.ReadMessage()
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-s.done:
			return
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("Hub", "Session %s write failed: %v", s.ID, err)
				s.hub.Detach(s)
				return
			}
			s.hub.metrics.PushEventsSent.Add(1)
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.hub.Detach(s)
				return
			}
		}
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}
