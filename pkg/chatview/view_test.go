package chatview

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chatline/pkg/channel"
	"github.com/go-go-golems/chatline/pkg/chat"
)

type frames struct {
	mu  sync.Mutex
	all []Frame
}

func (f *frames) Render(fr Frame) {
	f.mu.Lock()
	f.all = append(f.all, fr)
	f.mu.Unlock()
}

func (f *frames) last() Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.all) == 0 {
		return Frame{}
	}
	return f.all[len(f.all)-1]
}

func (f *frames) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.all)
}

func rowIDs(fr Frame) []string {
	ids := make([]string, 0, len(fr.Rows))
	for _, r := range fr.Rows {
		ids = append(ids, r.Message.ID)
	}
	return ids
}

type fixture struct {
	view      *View
	frames    *frames
	publisher *channel.Publisher
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            16,
		BlockPublishUntilSubscriberAck: true,
	}, channel.NewWatermillLogger(log.Logger))
	t.Cleanup(func() { _ = pubsub.Close() })

	tr, err := channel.NewPubSubTransport(pubsub)
	require.NoError(t, err)
	pub, err := channel.NewPublisher(pubsub)
	require.NoError(t, err)
	m, err := channel.NewManager(tr)
	require.NoError(t, err)

	fr := &frames{}
	v, err := New(m, "A", chat.Avatars{Self: "a.png", Partner: "b.png"}, fr, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Unmount() })
	return &fixture{view: v, frames: fr, publisher: pub}
}

func (f *fixture) send(t *testing.T, conv string, m chat.Message) {
	t.Helper()
	require.NoError(t, f.publisher.Publish(channel.Key(conv), channel.EventIncomingMessage, m))
}

func TestView_MountRendersSnapshotThenPrependsLive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snapshot := []chat.Message{
		{ID: "2", SenderID: "A", Timestamp: 200},
		{ID: "1", SenderID: "B", Timestamp: 100},
	}
	require.NoError(t, f.view.Mount(ctx, "c1", snapshot))
	require.Equal(t, []string{"2", "1"}, rowIDs(f.frames.last()))
	require.Equal(t, "c1", f.frames.last().ConversationID)

	f.send(t, "c1", chat.Message{ID: "3", SenderID: "A", Text: "hey", Timestamp: 300})
	require.Eventually(t, func() bool { return len(f.frames.last().Rows) == 3 }, time.Second, 10*time.Millisecond)

	fr := f.frames.last()
	require.Equal(t, []string{"3", "2", "1"}, rowIDs(fr))
	require.True(t, fr.Rows[0].Own)
	require.True(t, fr.Rows[1].GroupedWithNext)
}

func TestView_DropsMalformedPayloads(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.view.Mount(context.Background(), "c1", nil))
	before := f.frames.count()

	require.NoError(t, f.publisher.PublishRaw(channel.Key("c1"), channel.EventIncomingMessage, []byte(`{"text":"no ids"}`)))
	require.NoError(t, f.publisher.PublishRaw(channel.Key("c1"), channel.EventIncomingMessage, []byte(`not json`)))
	f.send(t, "c1", chat.Message{ID: "ok", SenderID: "B", Timestamp: 1})

	require.Eventually(t, func() bool { return f.frames.count() == before+1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"ok"}, rowIDs(f.frames.last()))
}

func TestView_RemountSwitchesConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.view.Mount(ctx, "c1", []chat.Message{{ID: "old", SenderID: "B", Timestamp: 1}}))
	require.NoError(t, f.view.Mount(ctx, "c2", []chat.Message{{ID: "new", SenderID: "B", Timestamp: 2}}))
	require.Equal(t, "c2", f.view.ConversationID())
	require.Equal(t, []string{"new"}, rowIDs(f.frames.last()))

	f.send(t, "c1", chat.Message{ID: "stale", SenderID: "B", Timestamp: 3})
	f.send(t, "c2", chat.Message{ID: "fresh", SenderID: "B", Timestamp: 4})

	require.Eventually(t, func() bool { return f.view.Feed().Len() == 2 }, time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"fresh", "new"}, rowIDs(f.view.Frame()))
}

func TestView_UnmountStopsUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.view.Mount(ctx, "c1", nil))
	require.True(t, f.view.Mounted())
	require.NoError(t, f.view.Unmount())
	require.NoError(t, f.view.Unmount())
	require.False(t, f.view.Mounted())

	f.send(t, "c1", chat.Message{ID: "late", SenderID: "B", Timestamp: 1})
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, f.view.Feed().Len())
}

func TestView_DedupOption(t *testing.T) {
	f := newFixture(t, WithFeedOptions(chat.WithDedup(true)))
	require.NoError(t, f.view.Mount(context.Background(), "c1", nil))

	m := chat.Message{ID: "m1", SenderID: "B", Timestamp: 1}
	f.send(t, "c1", m)
	f.send(t, "c1", m)
	f.send(t, "c1", chat.Message{ID: "m2", SenderID: "B", Timestamp: 2})

	require.Eventually(t, func() bool { return f.view.Feed().Len() == 2 }, time.Second, 10*time.Millisecond)
}

func TestView_HeaderFromPartner(t *testing.T) {
	f := newFixture(t, WithPartner(chat.Partner{ID: "u-1", Name: "Bo", Image: "bo.png"}))
	require.NoError(t, f.view.Mount(context.Background(), "c1", nil))
	require.Equal(t, "Bo", f.frames.last().Header.Partner.Name)
}

func TestNew_Validates(t *testing.T) {
	_, err := New(nil, "A", chat.Avatars{}, nil)
	require.Error(t, err)
}
