// Package channel binds conversations to real-time channels.
//
// A Transport opens named channels; a Channel carries named events to the handlers
// bound on it. Manager pairs subscribe/bind and unbind/unsubscribe so that a mounted
// conversation view owns at most one subscription and one handler at a time.
package channel

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// EventIncomingMessage is the event carrying a new chat message.
const EventIncomingMessage = "incoming-message"

var (
	ErrNotSubscribed = errors.New("channel not subscribed")
	ErrClosed        = errors.New("transport closed")
)

// Key derives the channel key of a conversation. Publishers and subscribers must
// both use it.
func Key(conversationID string) string {
	return "chat:" + conversationID
}

// SafeKey maps ':' to "__" for transports that reject colons in channel names.
func SafeKey(key string) string {
	return strings.ReplaceAll(key, ":", "__")
}

// Event is one delivery on a channel.
type Event struct {
	Channel string
	Name    string
	Data    []byte
}

type HandlerFunc func(Event)

// Transport opens and closes channels.
type Transport interface {
	Subscribe(ctx context.Context, key string) (Channel, error)
	Unsubscribe(key string) error
}

// Channel is an open channel. Bind returns a Binding identifying that exact handler
// so it can be removed without touching other handlers for the same event.
type Channel interface {
	Key() string
	Bind(event string, fn HandlerFunc) *Binding
	Unbind(b *Binding)
}

// Binding is one bound handler. After Unbind returns, the handler is not invoked
// again. A handler must not unbind itself.
type Binding struct {
	event string
	fn    HandlerFunc

	mu     sync.Mutex
	active bool
}

func newBinding(event string, fn HandlerFunc) *Binding {
	return &Binding{event: event, fn: fn, active: true}
}

func (b *Binding) Event() string { return b.event }

func (b *Binding) deliver(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active || b.fn == nil {
		return
	}
	b.fn(ev)
}

func (b *Binding) deactivate() {
	b.mu.Lock()
	b.active = false
	b.mu.Unlock()
}

// Bindings is the handler table shared by Channel implementations.
type Bindings struct {
	key string

	mu    sync.Mutex
	items []*Binding
}

func NewBindings(key string) *Bindings {
	return &Bindings{key: key}
}

func (bs *Bindings) Key() string { return bs.key }

func (bs *Bindings) Bind(event string, fn HandlerFunc) *Binding {
	b := newBinding(event, fn)
	bs.mu.Lock()
	bs.items = append(bs.items, b)
	bs.mu.Unlock()
	return b
}

func (bs *Bindings) Unbind(b *Binding) {
	if b == nil {
		return
	}
	b.deactivate()
	bs.mu.Lock()
	defer bs.mu.Unlock()
	for i, item := range bs.items {
		if item == b {
			bs.items = append(bs.items[:i], bs.items[i+1:]...)
			return
		}
	}
}

// UnbindAll deactivates every binding. Used when the channel itself goes away.
func (bs *Bindings) UnbindAll() {
	bs.mu.Lock()
	items := bs.items
	bs.items = nil
	bs.mu.Unlock()
	for _, b := range items {
		b.deactivate()
	}
}

// Dispatch delivers ev to every active binding for its event name, in bind order.
func (bs *Bindings) Dispatch(ev Event) {
	bs.mu.Lock()
	targets := make([]*Binding, 0, len(bs.items))
	for _, b := range bs.items {
		if b.event == ev.Name {
			targets = append(targets, b)
		}
	}
	bs.mu.Unlock()
	for _, b := range targets {
		b.deliver(ev)
	}
}

func (bs *Bindings) Len() int {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return len(bs.items)
}

var _ Channel = (*Bindings)(nil)
