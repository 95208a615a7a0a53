package chat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func msg(id, sender string, ts int64) Message {
	return Message{ID: id, SenderID: sender, Text: "text " + id, Timestamp: ts}
}

func TestFeed_IncomingIsPrependedInArrivalOrder(t *testing.T) {
	snapshot := []Message{msg("2", "A", 200), msg("1", "B", 100)}
	f := NewFeed(snapshot)

	for i := 0; i < 5; i++ {
		m := msg(fmt.Sprintf("live-%d", i), "A", int64(50-i))
		f.OnIncoming(m)
		got := f.Messages()
		require.Len(t, got, len(snapshot)+i+1)
		require.Equal(t, m, got[0])
	}
}

func TestFeed_LateEventIsNotReordered(t *testing.T) {
	f := NewFeed([]Message{msg("2", "A", 200)})
	f.OnIncoming(msg("0", "B", 1))

	got := f.Messages()
	require.Equal(t, "0", got[0].ID)
	require.Equal(t, "2", got[1].ID)
}

func TestFeed_DuplicatesAdmittedByDefault(t *testing.T) {
	f := NewFeed([]Message{msg("1", "A", 100)})
	require.True(t, f.OnIncoming(msg("1", "A", 100)))
	require.Equal(t, 2, f.Len())
}

func TestFeed_DedupIgnoresKnownIDs(t *testing.T) {
	f := NewFeed([]Message{msg("1", "A", 100)}, WithDedup(true))
	require.False(t, f.OnIncoming(msg("1", "A", 100)))
	require.True(t, f.OnIncoming(msg("2", "A", 200)))
	require.False(t, f.OnIncoming(msg("2", "A", 200)))
	require.Equal(t, 2, f.Len())
}

func TestFeed_SnapshotDuplicatesAreKept(t *testing.T) {
	f := NewFeed([]Message{msg("1", "A", 100), msg("1", "A", 100)}, WithDedup(true))
	require.Equal(t, 2, f.Len())
}

func TestFeed_InitializeDiscardsLiveMessages(t *testing.T) {
	f := NewFeed([]Message{msg("1", "A", 100)})
	f.OnIncoming(msg("2", "B", 200))

	f.Initialize([]Message{msg("x", "C", 10)})
	require.Equal(t, []Message{msg("x", "C", 10)}, f.Messages())
}

func TestFeed_OnChangeReceivesCopy(t *testing.T) {
	var mu sync.Mutex
	var renders [][]Message
	f := NewFeed(nil, WithOnChange(func(ms []Message) {
		mu.Lock()
		renders = append(renders, ms)
		mu.Unlock()
	}))

	f.OnIncoming(msg("1", "A", 100))
	f.OnIncoming(msg("2", "A", 200))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, renders, 2)
	renders[1][0].Text = "mutated"
	require.Equal(t, "text 2", f.Messages()[0].Text)
}

func TestFeed_SnapshotIsCopied(t *testing.T) {
	snapshot := []Message{msg("1", "A", 100)}
	f := NewFeed(snapshot)
	snapshot[0].Text = "changed"
	require.Equal(t, "text 1", f.Messages()[0].Text)
}

func TestDecodeMessage(t *testing.T) {
	m, err := DecodeMessage([]byte(`{"id":"3","senderId":"A","text":"hi","timestamp":300}`))
	require.NoError(t, err)
	require.Equal(t, Message{ID: "3", SenderID: "A", Text: "hi", Timestamp: 300}, m)

	_, err = DecodeMessage([]byte(`{"id":"3"}`))
	require.ErrorContains(t, err, "invalid message")

	_, err = DecodeMessage([]byte(`not json`))
	require.ErrorContains(t, err, "decode message")
}
