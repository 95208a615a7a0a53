package channel

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Handle is an active attachment of one conversation.
type Handle struct {
	ConversationID string
	Key            string

	channel Channel
	binding *Binding

	once sync.Once
	err  error
}

// Manager keeps at most one conversation attached to a transport.
type Manager struct {
	transport Transport

	mu     sync.Mutex
	active *Handle
}

func NewManager(t Transport) (*Manager, error) {
	if t == nil {
		return nil, errors.New("channel manager transport is nil")
	}
	return &Manager{transport: t}, nil
}

// Attach subscribes to the conversation's channel and binds fn for the incoming
// message event. A handle still attached is detached first.
func (m *Manager) Attach(ctx context.Context, conversationID string, fn HandlerFunc) (*Handle, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, errors.New("missing conversation id")
	}
	if fn == nil {
		return nil, errors.New("handler is nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev := m.active; prev != nil {
		m.active = nil
		_ = prev.detach(m.transport)
	}

	key := Key(conversationID)
	ch, err := m.transport.Subscribe(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "subscribe %s", key)
	}
	h := &Handle{
		ConversationID: conversationID,
		Key:            key,
		channel:        ch,
		binding:        ch.Bind(EventIncomingMessage, fn),
	}
	m.active = h
	log.Debug().Str("component", "channel").Str("conv_id", conversationID).Str("key", key).Msg("attached")
	return h, nil
}

// Detach unbinds the handle's handler and then unsubscribes its channel. Calling it
// again with the same handle returns the first result without side effects.
func (m *Manager) Detach(h *Handle) error {
	if h == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == h {
		m.active = nil
	}
	return h.detach(m.transport)
}

// Active returns the currently attached handle, if any.
func (m *Manager) Active() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (h *Handle) detach(t Transport) error {
	h.once.Do(func() {
		if h.channel != nil {
			h.channel.Unbind(h.binding)
		}
		if err := t.Unsubscribe(h.Key); err != nil {
			log.Warn().Err(err).Str("component", "channel").Str("key", h.Key).Msg("unsubscribe failed during detach")
			h.err = errors.Wrapf(err, "unsubscribe %s", h.Key)
		}
		log.Debug().Str("component", "channel").Str("conv_id", h.ConversationID).Str("key", h.Key).Msg("detached")
	})
	return h.err
}
