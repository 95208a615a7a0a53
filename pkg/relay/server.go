package relay

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatline/pkg/channel"
	"github.com/go-go-golems/chatline/pkg/chat"
)

const (
	maxFrameBytes   = 64 << 10
	maxPublishBytes = 1 << 20
)

type serverConfig struct {
	idleTimeout  time.Duration
	sendBuffer   int
	writeTimeout time.Duration
	topicFn      func(string) string
	upgrader     websocket.Upgrader
	before       BeforeSubscribeFunc
}

type ServerOption func(*serverConfig)

func WithIdleTimeout(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.idleTimeout = d }
}

func WithSendBuffer(n int) ServerOption {
	return func(c *serverConfig) {
		if n > 0 {
			c.sendBuffer = n
		}
	}
}

func WithWriteTimeout(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.writeTimeout = d }
}

// WithTopicFunc maps channel keys to watermill topics on both the publish and the
// subscribe path.
func WithTopicFunc(fn func(string) string) ServerOption {
	return func(c *serverConfig) {
		if fn != nil {
			c.topicFn = fn
		}
	}
}

// WithBeforeSubscribe runs fn each time the hub starts a topic subscription, before it subscribes.
func WithBeforeSubscribe(fn BeforeSubscribeFunc) ServerOption {
	return func(c *serverConfig) { c.before = fn }
}

func WithUpgrader(u websocket.Upgrader) ServerOption {
	return func(c *serverConfig) { c.upgrader = u }
}

// WithSettings applies the server fields of s.
func WithSettings(s Settings) ServerOption {
	return func(c *serverConfig) {
		c.idleTimeout = s.IdleTimeout()
		if s.SendBuffer > 0 {
			c.sendBuffer = s.SendBuffer
		}
		c.writeTimeout = s.WriteTimeout()
	}
}

// Server exposes a hub over websockets and a publish endpoint over plain HTTP.
type Server struct {
	hub          *Hub
	publisher    *channel.Publisher
	upgrader     websocket.Upgrader
	sendBuffer   int
	writeTimeout time.Duration

	mu       sync.Mutex
	sessions map[*session]struct{}
}

func NewServer(pub message.Publisher, sub message.Subscriber, opts ...ServerOption) (*Server, error) {
	if pub == nil || sub == nil {
		return nil, errors.New("relay server needs a publisher and a subscriber")
	}
	cfg := serverConfig{
		idleTimeout:  30 * time.Second,
		sendBuffer:   64,
		writeTimeout: 5 * time.Second,
		topicFn:      func(k string) string { return k },
		upgrader:     websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
	for _, o := range opts {
		o(&cfg)
	}
	p, err := channel.NewPublisher(pub, channel.WithTopicFunc(cfg.topicFn))
	if err != nil {
		return nil, err
	}
	hub := NewHub(sub, cfg.topicFn, cfg.idleTimeout)
	hub.beforeSubscribe = cfg.before
	return &Server{
		hub:          hub,
		publisher:    p,
		upgrader:     cfg.upgrader,
		sendBuffer:   cfg.sendBuffer,
		writeTimeout: cfg.writeTimeout,
		sessions:     map[*session]struct{}{},
	}, nil
}

func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.ServeWS)
	mux.HandleFunc("POST /api/channels/{key}/events/{event}", s.ServePublish)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "channels": s.hub.Channels()})
	})
	return mux
}

// Close stops every topic subscription and disconnects all websocket clients.
func (s *Server) Close() {
	s.hub.Close()
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = map[*session]struct{}{}
	s.mu.Unlock()
	for sess := range sessions {
		sess.close()
	}
}

func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("component", "relay").Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxFrameBytes)
	sess := newSession(uuid.NewString(), conn, s.sendBuffer, s.writeTimeout)
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
	log.Info().Str("component", "relay").Str("session", sess.id).Str("remote", r.RemoteAddr).Msg("websocket connected")
	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
		s.hub.Drop(sess)
		sess.close()
		log.Info().Str("component", "relay").Str("session", sess.id).Msg("websocket disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := decodeFrame(data)
		if err != nil {
			sess.enqueue(errorFrame("", err.Error()))
			continue
		}
		switch f.Type {
		case FrameSubscribe:
			if err := s.hub.Subscribe(r.Context(), sess, f.Channel); err != nil {
				log.Warn().Err(err).Str("component", "relay").Str("channel", f.Channel).Msg("subscribe failed")
				sess.enqueue(errorFrame(f.Channel, err.Error()))
			}
		case FrameUnsubscribe:
			s.hub.Unsubscribe(sess, f.Channel)
		case FrameSubscribed, FrameEvent, FrameError:
			sess.enqueue(errorFrame(f.Channel, "unexpected frame type "+string(f.Type)))
		default:
			sess.enqueue(errorFrame(f.Channel, "unknown frame type "+string(f.Type)))
		}
	}
}

// ServePublish publishes the request body as the named event on the channel key.
// incoming-message payloads must decode into a valid chat message.
func (s *Server) ServePublish(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.PathValue("key"))
	event := strings.TrimSpace(r.PathValue("event"))
	if key == "" || event == "" {
		http.Error(w, "missing channel key or event", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPublishBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if !json.Valid(body) {
		http.Error(w, "body must be JSON", http.StatusBadRequest)
		return
	}
	if event == channel.EventIncomingMessage {
		if _, err := chat.DecodeMessage(body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if err := s.publisher.PublishRaw(key, event, body); err != nil {
		log.Error().Err(err).Str("component", "relay").Str("channel", key).Str("event", event).Msg("publish failed")
		http.Error(w, "publish failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"channel": key, "event": event})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
