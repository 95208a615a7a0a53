package relay

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubConn struct {
	mu       sync.Mutex
	writes   [][]byte
	blockCh  chan struct{}
	closedCh chan struct{}
}

func newStubConn(blockWrites bool) *stubConn {
	blockCh := make(chan struct{})
	if !blockWrites {
		close(blockCh)
	}
	return &stubConn{blockCh: blockCh, closedCh: make(chan struct{})}
}

func (s *stubConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-s.closedCh:
		return errors.New("closed")
	case <-s.blockCh:
	}
	s.mu.Lock()
	s.writes = append(s.writes, append([]byte(nil), data...))
	s.mu.Unlock()
	return nil
}

func (s *stubConn) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closedCh:
	default:
		close(s.closedCh)
	}
	return nil
}

func (s *stubConn) SetWriteDeadline(_ time.Time) error {
	return nil
}

func (s *stubConn) written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.writes))
	for _, w := range s.writes {
		out = append(out, string(w))
	}
	return out
}

func TestConnectionPoolDropsOnFullBuffer(t *testing.T) {
	pool := NewConnectionPool("chat:c1", 0, nil)
	conn := newStubConn(true)
	sess := newSession("s1", conn, 1, 0)
	pool.Add(sess)

	pool.Broadcast([]byte("one"))
	pool.Broadcast([]byte("two"))
	pool.Broadcast([]byte("three"))

	require.Eventually(t, func() bool {
		return pool.Count() == 0
	}, time.Second, 10*time.Millisecond)
	select {
	case <-conn.closedCh:
	default:
		t.Fatal("slow session was not closed")
	}
}

func TestConnectionPoolBroadcastKeepsOrder(t *testing.T) {
	pool := NewConnectionPool("chat:c1", 0, nil)
	a, b := newStubConn(false), newStubConn(false)
	sa, sb := newSession("a", a, 16, 0), newSession("b", b, 16, 0)
	defer sa.close()
	defer sb.close()
	pool.Add(sa)
	pool.Add(sb)

	for _, m := range []string{"1", "2", "3"} {
		pool.Broadcast([]byte(m))
	}
	require.Eventually(t, func() bool {
		return len(a.written()) == 3 && len(b.written()) == 3
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"1", "2", "3"}, a.written())
	require.Equal(t, []string{"1", "2", "3"}, b.written())
}

func TestConnectionPoolIdleCallback(t *testing.T) {
	fired := make(chan struct{}, 1)
	pool := NewConnectionPool("chat:c1", 20*time.Millisecond, func() { fired <- struct{}{} })
	sess := newSession("s1", newStubConn(false), 4, 0)
	defer sess.close()

	pool.Add(sess)
	require.True(t, pool.Remove(sess))
	require.False(t, pool.Remove(sess))

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("idle callback did not fire")
	}
}

func TestConnectionPoolAddCancelsIdle(t *testing.T) {
	fired := make(chan struct{}, 1)
	pool := NewConnectionPool("chat:c1", 50*time.Millisecond, func() { fired <- struct{}{} })
	sess := newSession("s1", newStubConn(false), 4, 0)
	defer sess.close()

	pool.Add(sess)
	pool.Remove(sess)
	pool.Add(sess)

	select {
	case <-fired:
		t.Fatal("idle fired while a session was attached")
	case <-time.After(150 * time.Millisecond):
	}
}
