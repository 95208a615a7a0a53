package relay

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

var ErrHubClosed = errors.New("relay hub closed")

// BeforeSubscribeFunc prepares a watermill topic before the hub subscribes to it.
type BeforeSubscribeFunc func(ctx context.Context, topic string) error

type topic struct {
	pool        *ConnectionPool
	coordinator *StreamCoordinator
}

// Hub maps channel keys to a shared topic subscription plus the pool of sessions
// listening on it.
type Hub struct {
	subscriber      message.Subscriber
	topicFn         func(string) string
	idleTimeout     time.Duration
	beforeSubscribe BeforeSubscribeFunc

	mu     sync.Mutex
	topics map[string]*topic
	closed bool
}

func NewHub(sub message.Subscriber, topicFn func(string) string, idleTimeout time.Duration) *Hub {
	if topicFn == nil {
		topicFn = func(k string) string { return k }
	}
	return &Hub{
		subscriber:  sub,
		topicFn:     topicFn,
		idleTimeout: idleTimeout,
		topics:      map[string]*topic{},
	}
}

// Subscribe adds s to key's pool, starting the topic subscription if needed. The
// subscribed acknowledgement is queued before s joins the pool, so the client sees
// it ahead of any event on key.
func (h *Hub) Subscribe(ctx context.Context, s *session, key string) error {
	if key == "" {
		return errors.New("empty channel key")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	t, ok := h.topics[key]
	if !ok {
		if h.beforeSubscribe != nil {
			if err := h.beforeSubscribe(ctx, h.topicFn(key)); err != nil {
				return errors.Wrapf(err, "prepare %s", key)
			}
		}
		t = &topic{}
		t.pool = NewConnectionPool(key, h.idleTimeout, func() { h.release(key, t) })
		t.coordinator = NewStreamCoordinator(key, h.topicFn(key), h.subscriber, t.pool.Broadcast)
		if err := t.coordinator.Start(ctx); err != nil {
			return err
		}
		h.topics[key] = t
	}
	if t.pool.Has(s) {
		return nil
	}
	ack, err := encodeFrame(Frame{Type: FrameSubscribed, Channel: key})
	if err != nil {
		return err
	}
	if !s.enqueue(ack) {
		if t.pool.IsEmpty() {
			delete(h.topics, key)
			t.coordinator.Stop()
		}
		return errors.New("session closed")
	}
	t.pool.Add(s)
	log.Debug().Str("component", "relay").Str("channel", key).Str("session", s.id).Msg("session subscribed")
	return nil
}

// Unsubscribe removes s from key's pool. An unknown key is not an error.
func (h *Hub) Unsubscribe(s *session, key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[key]
	if !ok {
		return
	}
	if t.pool.Remove(s) {
		log.Debug().Str("component", "relay").Str("channel", key).Str("session", s.id).Msg("session unsubscribed")
	}
	h.releaseIfEmptyLocked(key, t)
}

// Drop removes s from every pool; used when its connection goes away.
func (h *Hub) Drop(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, t := range h.topics {
		if t.pool.Remove(s) {
			h.releaseIfEmptyLocked(key, t)
		}
	}
}

// Channels returns the sorted keys that currently hold a topic subscription.
func (h *Hub) Channels() []string {
	h.mu.Lock()
	keys := lo.Keys(h.topics)
	h.mu.Unlock()
	slices.Sort(keys)
	return keys
}

func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	topics := h.topics
	h.topics = map[string]*topic{}
	h.mu.Unlock()
	for _, t := range topics {
		t.pool.CancelIdleTimer()
		t.coordinator.Stop()
	}
}

// releaseIfEmptyLocked stops an empty topic right away when no idle grace period is
// configured; otherwise the pool's idle timer calls release later.
func (h *Hub) releaseIfEmptyLocked(key string, t *topic) {
	if h.idleTimeout > 0 || !t.pool.IsEmpty() {
		return
	}
	if h.topics[key] == t {
		delete(h.topics, key)
	}
	t.coordinator.Stop()
}

func (h *Hub) release(key string, t *topic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.topics[key] != t || !t.pool.IsEmpty() {
		return
	}
	delete(h.topics, key)
	t.coordinator.Stop()
	log.Info().Str("component", "relay").Str("channel", key).Msg("idle channel released")
}
