package chat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSnapshot_YAML(t *testing.T) {
	s, err := ParseSnapshot([]byte(`
conversationId: c1
partner:
  id: u-2
  name: Bo
messages:
  - id: "2"
    senderId: A
    text: later
    timestamp: 200
  - id: "1"
    senderId: B
    text: earlier
    timestamp: 100
`))
	require.NoError(t, err)
	require.Equal(t, "c1", s.ConversationID)
	require.Equal(t, "Bo", s.Partner.Name)
	require.Len(t, s.Messages, 2)
	require.Equal(t, "2", s.Messages[0].ID)
	require.Equal(t, int64(100), s.Messages[1].Timestamp)
}

func TestLoadSnapshot_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"messages":[{"id":"1","senderId":"A","text":"hi","timestamp":1}]}`), 0o600))
	s, err := LoadSnapshot(path)
	require.NoError(t, err)
	require.Equal(t, "hi", s.Messages[0].Text)
}

func TestParseSnapshot_RejectsInvalidMessage(t *testing.T) {
	_, err := ParseSnapshot([]byte("messages:\n  - text: orphan\n"))
	require.ErrorContains(t, err, "snapshot message 0")
}
