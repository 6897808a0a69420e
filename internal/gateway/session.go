package gateway

import (
	"github.com/gorilla/websocket"

	"StreamPulse/internal/delivery"
	"StreamPulse/internal/domain"
)

// wsSession is one authenticated websocket connection. Outbound frames go
// through a buffered channel drained by a single writer goroutine, so frames
// reach the wire in the order they were enqueued.
type wsSession struct {
	conn  *websocket.Conn
	owner string
	out   chan serverEnvelope
	done  chan struct{}
}

var _ delivery.Session = (*wsSession)(nil)

func newSession(conn *websocket.Conn, owner string, buffer int) *wsSession {
	return &wsSession{
		conn:  conn,
		owner: owner,
		out:   make(chan serverEnvelope, buffer),
		done:  make(chan struct{}),
	}
}

// Owner identifies whose streams this session receives.
func (s *wsSession) Owner() string { return s.owner }

// Send enqueues a broker message without blocking. A full buffer means the
// client is not keeping up; the push is dropped and replay covers the gap.
func (s *wsSession) Send(msg domain.Message) error {
	return s.push(serverEnvelope{Type: evMessage, Payload: msg})
}

func (s *wsSession) push(env serverEnvelope) error {
	select {
	case s.out <- env:
		return nil
	case <-s.done:
		return domain.ErrDeliveryFailed
	default:
		return domain.ErrDeliveryFailed
	}
}

// writeLoop drains the outbound queue onto the socket.
func (s *wsSession) writeLoop() {
	for {
		select {
		case env := <-s.out:
			if err := s.conn.WriteJSON(env); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *wsSession) close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	_ = s.conn.Close()
}
