package channel

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func newGoChannel(t *testing.T) *gochannel.GoChannel {
	t.Helper()
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            16,
		BlockPublishUntilSubscriberAck: true,
	}, NewWatermillLogger(log.Logger))
	t.Cleanup(func() { _ = pubsub.Close() })
	return pubsub
}

func TestPubSubTransport_DeliversInPublishOrder(t *testing.T) {
	pubsub := newGoChannel(t)
	tr, err := NewPubSubTransport(pubsub)
	require.NoError(t, err)
	pub, err := NewPublisher(pubsub)
	require.NoError(t, err)

	m, err := NewManager(tr)
	require.NoError(t, err)
	rec := &recorder{}
	_, err = m.Attach(context.Background(), "c1", rec.handle)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, pub.Publish(Key("c1"), EventIncomingMessage, map[string]any{"id": fmt.Sprint(i)}))
	}

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 10 }, time.Second, 10*time.Millisecond)
	for i, ev := range rec.snapshot() {
		require.Equal(t, "chat:c1", ev.Channel)
		require.Equal(t, EventIncomingMessage, ev.Name)
		require.JSONEq(t, fmt.Sprintf(`{"id":"%d"}`, i), string(ev.Data))
	}
}

func TestPubSubTransport_NoCrossTalkAfterSwitch(t *testing.T) {
	pubsub := newGoChannel(t)
	tr, err := NewPubSubTransport(pubsub)
	require.NoError(t, err)
	pub, err := NewPublisher(pubsub)
	require.NoError(t, err)
	m, err := NewManager(tr)
	require.NoError(t, err)

	oldRec, newRec := &recorder{}, &recorder{}
	h, err := m.Attach(context.Background(), "c1", oldRec.handle)
	require.NoError(t, err)
	require.NoError(t, m.Detach(h))
	_, err = m.Attach(context.Background(), "c2", newRec.handle)
	require.NoError(t, err)

	require.NoError(t, pub.Publish(Key("c1"), EventIncomingMessage, "stale"))
	require.NoError(t, pub.Publish(Key("c2"), EventIncomingMessage, "fresh"))

	require.Eventually(t, func() bool { return len(newRec.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
	require.JSONEq(t, `"fresh"`, string(newRec.snapshot()[0].Data))
	require.Empty(t, oldRec.snapshot())
}

func TestPubSubTransport_UnsubscribeUnknownKey(t *testing.T) {
	tr, err := NewPubSubTransport(newGoChannel(t))
	require.NoError(t, err)
	require.ErrorIs(t, tr.Unsubscribe("chat:none"), ErrNotSubscribed)
}

func TestPubSubTransport_SubscribeSameKeyReturnsSameChannel(t *testing.T) {
	tr, err := NewPubSubTransport(newGoChannel(t))
	require.NoError(t, err)
	a, err := tr.Subscribe(context.Background(), "chat:c1")
	require.NoError(t, err)
	b, err := tr.Subscribe(context.Background(), "chat:c1")
	require.NoError(t, err)
	require.Same(t, a, b)

	require.NoError(t, tr.Close())
	_, err = tr.Subscribe(context.Background(), "chat:c1")
	require.ErrorIs(t, err, ErrClosed)
}

func TestPubSubTransport_TopicFunc(t *testing.T) {
	pubsub := newGoChannel(t)
	tr, err := NewPubSubTransport(pubsub, WithTopicFunc(SafeKey))
	require.NoError(t, err)
	pub, err := NewPublisher(pubsub, WithTopicFunc(SafeKey))
	require.NoError(t, err)

	ch, err := tr.Subscribe(context.Background(), "chat:c1")
	require.NoError(t, err)
	rec := &recorder{}
	ch.Bind(EventIncomingMessage, rec.handle)

	require.NoError(t, pub.PublishRaw("chat:c1", EventIncomingMessage, []byte(`{}`)))
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
}

func TestPublisher_ValidatesArguments(t *testing.T) {
	_, err := NewPublisher(nil)
	require.ErrorContains(t, err, "publisher is nil")

	pub, err := NewPublisher(newGoChannel(t))
	require.NoError(t, err)
	require.ErrorContains(t, pub.PublishRaw("", "e", nil), "empty channel key")
	require.ErrorContains(t, pub.PublishRaw("k", "", nil), "empty event name")
}
