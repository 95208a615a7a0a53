package ui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chatline/pkg/chat"
	"github.com/go-go-golems/chatline/pkg/chatview"
)

func sampleFrame() chatview.Frame {
	msgs := []chat.Message{
		{ID: "3", SenderID: "alice", Text: "third", Timestamp: 300},
		{ID: "2", SenderID: "alice", Text: "second", Timestamp: 200},
		{ID: "1", SenderID: "bob", Text: "first", Timestamp: 100},
	}
	return chatview.Frame{
		ConversationID: "c1",
		Header:         chat.NewHeader(chat.Partner{ID: "bob", Name: "Bob"}),
		Rows:           chat.Present(msgs, "alice", chat.Avatars{}),
	}
}

func TestRenderRows_OldestOnTop(t *testing.T) {
	out := RenderRows(sampleFrame().Rows, 60)
	first := strings.Index(out, "first")
	second := strings.Index(out, "second")
	third := strings.Index(out, "third")
	require.True(t, first >= 0 && first < second && second < third, out)
}

func TestRenderRow_TailOnNewestRowOfRun(t *testing.T) {
	rows := sampleFrame().Rows
	require.Contains(t, RenderRow(rows[0], 60), "┘")
	require.NotContains(t, RenderRow(rows[1], 60), "┘")
	require.Contains(t, RenderRow(rows[2], 60), "└")
	require.Contains(t, RenderRow(rows[0], 60), "A")

	// on screen the tailed bubble closes the run at the bottom
	out := RenderRows(rows, 60)
	require.Equal(t, 1, strings.Count(out, "┘"))
	require.Greater(t, strings.Index(out, "┘"), strings.Index(out, "second"))
}

func TestFeedModel_FrameAndCall(t *testing.T) {
	var navigated string
	nav := chat.NavigatorFunc(func(_ context.Context, path string) error {
		navigated = path
		return nil
	})
	var m tea.Model = NewFeedModel(context.Background(), chatview.Frame{}, nav)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 20})
	m, _ = m.Update(FrameMsg(sampleFrame()))
	require.Contains(t, m.View(), "Bob")
	require.Contains(t, m.View(), "third")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	require.NotNil(t, cmd)
	msg := cmd()
	require.Equal(t, NavigatedMsg{Path: "/call/bob"}, msg)
	require.Equal(t, "/call/bob", navigated)

	m, _ = m.Update(msg)
	require.Contains(t, m.View(), "opened /call/bob")
}
