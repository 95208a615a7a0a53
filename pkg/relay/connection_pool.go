package relay

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ConnectionPool tracks the sessions subscribed to one channel key. It centralizes
// broadcasting and idle detection: once the pool has been empty for idleTimeout,
// onIdle fires so the hub can drop the topic subscription.
type ConnectionPool struct {
	key         string
	mu          sync.Mutex
	sessions    map[*session]struct{}
	idleTimer   *time.Timer
	idleTimeout time.Duration
	onIdle      func()
}

func NewConnectionPool(key string, idleTimeout time.Duration, onIdle func()) *ConnectionPool {
	return &ConnectionPool{
		key:         key,
		sessions:    map[*session]struct{}{},
		idleTimeout: idleTimeout,
		onIdle:      onIdle,
	}
}

func (cp *ConnectionPool) Add(s *session) {
	if cp == nil || s == nil {
		return
	}
	cp.mu.Lock()
	cp.sessions[s] = struct{}{}
	cp.stopIdleTimerLocked()
	cp.mu.Unlock()
}

// Remove forgets s without closing it; the session may still listen on other keys.
func (cp *ConnectionPool) Remove(s *session) bool {
	if cp == nil || s == nil {
		return false
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	_, ok := cp.sessions[s]
	delete(cp.sessions, s)
	cp.scheduleIdleTimerLocked()
	return ok
}

func (cp *ConnectionPool) Has(s *session) bool {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	_, ok := cp.sessions[s]
	return ok
}

func (cp *ConnectionPool) Broadcast(data []byte) {
	if cp == nil || len(data) == 0 {
		return
	}
	cp.mu.Lock()
	for s := range cp.sessions {
		if !s.enqueue(data) {
			log.Warn().Str("component", "relay").Str("channel", cp.key).Str("session", s.id).Msg("send queue full or closed, dropping session")
			delete(cp.sessions, s)
			s.close()
		}
	}
	cp.scheduleIdleTimerLocked()
	cp.mu.Unlock()
}

func (cp *ConnectionPool) Count() int {
	if cp == nil {
		return 0
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return len(cp.sessions)
}

func (cp *ConnectionPool) IsEmpty() bool {
	return cp.Count() == 0
}

func (cp *ConnectionPool) CancelIdleTimer() {
	if cp == nil {
		return
	}
	cp.mu.Lock()
	cp.stopIdleTimerLocked()
	cp.mu.Unlock()
}

func (cp *ConnectionPool) stopIdleTimerLocked() {
	if cp.idleTimer != nil {
		cp.idleTimer.Stop()
		cp.idleTimer = nil
	}
}

func (cp *ConnectionPool) scheduleIdleTimerLocked() {
	if len(cp.sessions) != 0 || cp.idleTimeout <= 0 || cp.onIdle == nil {
		cp.stopIdleTimerLocked()
		return
	}
	if cp.idleTimer != nil {
		return
	}
	cp.idleTimer = time.AfterFunc(cp.idleTimeout, cp.triggerIdle)
}

func (cp *ConnectionPool) triggerIdle() {
	var callback func()
	cp.mu.Lock()
	if len(cp.sessions) == 0 {
		callback = cp.onIdle
	}
	cp.idleTimer = nil
	cp.mu.Unlock()
	if callback != nil {
		callback()
	}
}
