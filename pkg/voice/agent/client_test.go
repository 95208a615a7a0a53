package agent

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chatline/pkg/voice"
)

type fakeAgentServer struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu       sync.Mutex
	agentIDs []string
	received []map[string]any
	conn     *websocket.Conn
	refuse   bool
}

func (f *fakeAgentServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.agentIDs = append(f.agentIDs, r.URL.Query().Get("agent_id"))
	f.conn = conn
	f.mu.Unlock()

	var init map[string]any
	if err := conn.ReadJSON(&init); err != nil {
		return
	}
	f.record(init)
	if f.refuse {
		_ = conn.WriteJSON(map[string]any{"type": "error", "message": "unknown agent"})
		return
	}
	_ = conn.WriteJSON(map[string]any{
		"type":                                   "conversation_initiation_metadata",
		"conversation_initiation_metadata_event": map[string]any{"conversation_id": "conv-1"},
	})
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		f.record(msg)
	}
}

func (f *fakeAgentServer) record(m map[string]any) {
	f.mu.Lock()
	f.received = append(f.received, m)
	f.mu.Unlock()
}

func (f *fakeAgentServer) messages() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.received...)
}

func (f *fakeAgentServer) send(v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NoError(f.t, f.conn.WriteJSON(v))
}

func (f *fakeAgentServer) hangUp() {
	f.mu.Lock()
	defer f.mu.Unlock()
	_ = f.conn.Close()
}

type events struct {
	mu  sync.Mutex
	all []voice.Event
}

func (e *events) notify(ev voice.Event) {
	e.mu.Lock()
	e.all = append(e.all, ev)
	e.mu.Unlock()
}

func (e *events) types() []voice.EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]voice.EventType, 0, len(e.all))
	for _, ev := range e.all {
		out = append(out, ev.Type)
	}
	return out
}

func (e *events) texts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, ev := range e.all {
		if ev.Message != nil {
			out = append(out, string(ev.Message.Source)+":"+ev.Message.Text)
		}
	}
	return out
}

func newFakeServer(t *testing.T) (*fakeAgentServer, string) {
	f := &fakeAgentServer{t: t}
	hs := httptest.NewServer(f)
	t.Cleanup(hs.Close)
	return f, "ws" + strings.TrimPrefix(hs.URL, "http")
}

func TestClient_SessionLifecycle(t *testing.T) {
	srv, url := newFakeServer(t)
	c := New(WithURL(url))
	evs := &events{}

	sess, err := c.StartSession(context.Background(), voice.SessionConfig{AgentID: "agent-1"}, evs.notify)
	require.NoError(t, err)
	require.Equal(t, voice.StatusConnected, sess.Status())
	srv.mu.Lock()
	require.Equal(t, []string{"agent-1"}, srv.agentIDs)
	srv.mu.Unlock()
	require.Equal(t, "conversation_initiation_client_data", srv.messages()[0]["type"])

	srv.send(map[string]any{"type": "ping", "ping_event": map[string]any{"event_id": 7}})
	srv.send(map[string]any{"type": "user_transcript", "user_transcription_event": map[string]any{"user_transcript": "hi"}})
	srv.send(map[string]any{"type": "agent_response", "agent_response_event": map[string]any{"agent_response": "hello"}})

	require.Eventually(t, func() bool { return len(evs.texts()) == 2 }, time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"user:hi", "ai:hello"}, evs.texts())
	require.Eventually(t, func() bool {
		for _, m := range srv.messages() {
			if m["type"] == "pong" && m["event_id"] == float64(7) {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	srv.hangUp()
	require.Eventually(t, func() bool {
		types := evs.types()
		return len(types) > 0 && types[len(types)-1] == voice.EventDisconnect
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, voice.EventConnect, evs.types()[0])
	require.Equal(t, voice.StatusNotConnected, sess.Status())
	require.NoError(t, sess.End(context.Background()))
}

func TestClient_RefusedConversation(t *testing.T) {
	srv, url := newFakeServer(t)
	srv.refuse = true
	_, err := New(WithURL(url)).StartSession(context.Background(), voice.SessionConfig{AgentID: "nope"}, nil)
	require.ErrorContains(t, err, "unknown agent")
}

func TestClient_RequiresAgentID(t *testing.T) {
	_, err := New().StartSession(context.Background(), voice.SessionConfig{}, nil)
	require.ErrorContains(t, err, "agent id")
}

type bytesSource struct{ data []byte }

func (b bytesSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

func TestClient_StreamsAudioChunks(t *testing.T) {
	srv, url := newFakeServer(t)
	pcm := bytes.Repeat([]byte{1, 2}, audioChunkBytes)
	c := New(WithURL(url), WithAudioSource(bytesSource{data: pcm}))

	sess, err := c.StartSession(context.Background(), voice.SessionConfig{AgentID: "agent-1"}, nil)
	require.NoError(t, err)
	defer func() { _ = sess.End(context.Background()) }()

	var got []byte
	require.Eventually(t, func() bool {
		got = got[:0]
		for _, m := range srv.messages() {
			if chunk, ok := m["user_audio_chunk"].(string); ok {
				b, err := base64.StdEncoding.DecodeString(chunk)
				require.NoError(t, err)
				got = append(got, b...)
			}
		}
		return len(got) == len(pcm)
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, pcm, got)
}

func TestBuildURL(t *testing.T) {
	got, err := buildURL("https://agents.example/v1/convai/conversation", "a b")
	require.NoError(t, err)
	require.Equal(t, "wss://agents.example/v1/convai/conversation?agent_id=a+b", got)

	_, err = buildURL("ftp://x", "a")
	require.Error(t, err)
}

func TestDecodeInbound(t *testing.T) {
	raw, err := json.Marshal(map[string]any{"type": "agent_response", "agent_response_event": map[string]any{"agent_response": "x"}})
	require.NoError(t, err)
	in, err := decodeInbound(raw)
	require.NoError(t, err)
	require.Equal(t, "x", in.AgentResponseEvent.AgentResponse)
}
