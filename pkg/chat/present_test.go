package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPresent_IncomingMessageGroupsWithOlderRun(t *testing.T) {
	f := NewFeed([]Message{msg("2", "A", 200), msg("1", "B", 100)})
	f.OnIncoming(msg("3", "A", 300))

	rows := Present(f.Messages(), "A", Avatars{Self: "me.png", Partner: "them.png"}, WithTimeFormatter(ClockFormatter(time.UTC)))
	require.Len(t, rows, 3)

	require.Equal(t, "3", rows[0].Message.ID)
	require.True(t, rows[0].Own)
	require.False(t, rows[0].GroupedWithNext)
	require.True(t, rows[0].ShowAvatar)
	require.Equal(t, CornerTailRight, rows[0].Corner)
	require.Equal(t, SideRight, rows[0].Side)
	require.Equal(t, "me.png", rows[0].AvatarURL)

	require.Equal(t, "2", rows[1].Message.ID)
	require.True(t, rows[1].GroupedWithNext)
	require.False(t, rows[1].ShowAvatar)
	require.Equal(t, CornerNone, rows[1].Corner)

	require.Equal(t, "1", rows[2].Message.ID)
	require.False(t, rows[2].Own)
	require.True(t, rows[2].ShowAvatar)
	require.Equal(t, SideLeft, rows[2].Side)
	require.Equal(t, CornerTailLeft, rows[2].Corner)
	require.Equal(t, "them.png", rows[2].AvatarURL)
	require.Equal(t, "00:00", rows[2].Time)
}

func TestPresent_RunShowsExactlyOneTail(t *testing.T) {
	messages := []Message{
		msg("6", "B", 6),
		msg("5", "A", 5),
		msg("4", "A", 4),
		msg("3", "A", 3),
		msg("2", "A", 2),
		msg("1", "B", 1),
	}
	rows := Present(messages, "A", Avatars{})

	var tails, hidden int
	for _, r := range rows[1:5] {
		if r.ShowAvatar {
			tails++
			require.Equal(t, "5", r.Message.ID)
			require.Equal(t, CornerTailRight, r.Corner)
		} else {
			hidden++
			require.Equal(t, CornerNone, r.Corner)
		}
	}
	require.Equal(t, 1, tails)
	require.Equal(t, 3, hidden)
}

func TestPresent_IsDeterministic(t *testing.T) {
	messages := []Message{msg("2", "A", 200), msg("1", "A", 100)}
	a := Present(messages, "B", Avatars{Partner: "p"})
	b := Present(messages, "B", Avatars{Partner: "p"})
	require.Equal(t, a, b)
	require.Equal(t, "2-200", a[0].Key)
}

func TestPresent_EmptyFeed(t *testing.T) {
	require.Empty(t, Present(nil, "A", Avatars{}))
}

func TestHeader_StartCallNavigatesToCallPath(t *testing.T) {
	h := NewHeader(Partner{ID: "u-42", Name: "Eric"})
	require.Equal(t, "/call/u-42", h.CallPath)

	var got string
	err := h.StartCall(context.Background(), NavigatorFunc(func(_ context.Context, path string) error {
		got = path
		return nil
	}))
	require.NoError(t, err)
	require.Equal(t, "/call/u-42", got)
}
