package channel

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// MetadataEvent is the watermill metadata key carrying the event name.
const MetadataEvent = "event"

// PubSubTransport opens channels as topics of a watermill subscriber. Each channel
// gets its own consume loop; messages are dispatched in the order the subscriber
// yields them.
type PubSubTransport struct {
	subscriber message.Subscriber
	topicFn    func(string) string

	mu       sync.Mutex
	channels map[string]*topicChannel
	closed   bool
}

type pubsubConfig struct {
	topicFn func(string) string
}

// PubSubOption configures both PubSubTransport and Publisher so that the two sides
// agree on topic naming.
type PubSubOption func(*pubsubConfig)

// WithTopicFunc maps a channel key to a watermill topic (identity by default).
func WithTopicFunc(fn func(string) string) PubSubOption {
	return func(c *pubsubConfig) {
		if fn != nil {
			c.topicFn = fn
		}
	}
}

func newPubSubConfig(opts []PubSubOption) pubsubConfig {
	c := pubsubConfig{topicFn: func(k string) string { return k }}
	for _, o := range opts {
		o(&c)
	}
	return c
}

type topicChannel struct {
	*Bindings
	cancel context.CancelFunc
}

func NewPubSubTransport(sub message.Subscriber, opts ...PubSubOption) (*PubSubTransport, error) {
	if sub == nil {
		return nil, errors.New("pubsub transport subscriber is nil")
	}
	return &PubSubTransport{
		subscriber: sub,
		topicFn:    newPubSubConfig(opts).topicFn,
		channels:   map[string]*topicChannel{},
	}, nil
}

// Subscribe opens key. Subscribing to a key that is already open returns the same
// channel.
func (t *PubSubTransport) Subscribe(ctx context.Context, key string) (Channel, error) {
	if key == "" {
		return nil, errors.New("empty channel key")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	if ch, ok := t.channels[key]; ok {
		return ch, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	msgs, err := t.subscriber.Subscribe(runCtx, t.topicFn(key))
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "watermill subscribe")
	}
	ch := &topicChannel{
		Bindings: NewBindings(key),
		cancel:   cancel,
	}
	t.channels[key] = ch
	go ch.consume(msgs)
	log.Info().Str("component", "channel").Str("key", key).Msg("pubsub channel subscribed")
	return ch, nil
}

// Unsubscribe closes key. Handlers still bound on it are deactivated first, so no
// event is delivered after Unsubscribe returns.
func (t *PubSubTransport) Unsubscribe(key string) error {
	t.mu.Lock()
	ch, ok := t.channels[key]
	if ok {
		delete(t.channels, key)
	}
	t.mu.Unlock()
	if !ok {
		return ErrNotSubscribed
	}
	ch.UnbindAll()
	ch.cancel()
	log.Info().Str("component", "channel").Str("key", key).Msg("pubsub channel unsubscribed")
	return nil
}

// Close unsubscribes every channel. The underlying subscriber is owned by the caller.
func (t *PubSubTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	keys := make([]string, 0, len(t.channels))
	for k := range t.channels {
		keys = append(keys, k)
	}
	t.mu.Unlock()
	for _, k := range keys {
		_ = t.Unsubscribe(k)
	}
	return nil
}

func (c *topicChannel) consume(msgs <-chan *message.Message) {
	for msg := range msgs {
		c.Dispatch(Event{
			Channel: c.Key(),
			Name:    msg.Metadata.Get(MetadataEvent),
			Data:    msg.Payload,
		})
		msg.Ack()
	}
	log.Debug().Str("component", "channel").Str("key", c.Key()).Msg("pubsub consume loop stopped")
}

var _ Transport = (*PubSubTransport)(nil)
