package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// session is one websocket client. All writes go through its send queue and a
// single writer goroutine, so frames for a channel reach the client in the order
// they were queued.
type session struct {
	id           string
	conn         wsConn
	send         chan []byte
	writeTimeout time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(id string, conn wsConn, sendBuffer int, writeTimeout time.Duration) *session {
	if sendBuffer <= 0 {
		sendBuffer = 1
	}
	s := &session{
		id:           id,
		conn:         conn,
		send:         make(chan []byte, sendBuffer),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// enqueue returns false when the session is closed or its queue is full. A full
// queue means the client is too slow and the caller drops it.
func (s *session) enqueue(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- data:
		return true
	case <-s.done:
		return false
	default:
		return false
	}
}

func (s *session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case data := <-s.send:
			if s.writeTimeout > 0 {
				_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("component", "relay").Str("session", s.id).Msg("ws write failed, closing session")
				s.close()
				return
			}
		}
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}
