package relay

import (
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// wsConn is the subset of the websocket connection the relay uses,
// abstracted so tests can run sessions without a network socket.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteJSON(v interface{}) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// session is one live bidirectional connection (one browser tab).
// Mutable relay state for the connection lives in the hub maps; the
// session only owns its outbound queue.
type session struct {
	id   string
	conn wsConn
	send chan Envelope

	mu     sync.Mutex
	closed bool
}

func newSession(id string, conn wsConn, sendBuffer int) *session {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &session{
		id:   id,
		conn: conn,
		send: make(chan Envelope, sendBuffer),
	}
}

// enqueue queues an envelope for delivery. It never blocks: a full or
// closed queue drops the envelope and reports false.
func (s *session) enqueue(env Envelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- env:
		return true
	default:
		return false
	}
}

func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

// writePump drains the outbound queue onto the socket and keeps the
// connection alive with pings.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case env, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
