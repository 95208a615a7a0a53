// Package agent connects a voice.Controller to a remote conversational voice agent
// over its websocket API.
package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatline/pkg/voice"
)

const (
	DefaultURL = "wss://api.elevenlabs.io/v1/convai/conversation"

	// 100ms of 16kHz mono s16le.
	audioChunkBytes = 3200
)

// AudioSource opens the PCM stream sent to the agent.
type AudioSource interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

type Option func(*Client)

func WithURL(u string) Option {
	return func(c *Client) {
		if strings.TrimSpace(u) != "" {
			c.baseURL = strings.TrimSpace(u)
		}
	}
}

func WithHeader(h http.Header) Option {
	return func(c *Client) { c.header = h }
}

func WithAudioSource(src AudioSource) Option {
	return func(c *Client) { c.audio = src }
}

func WithInitTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.initTimeout = d
		}
	}
}

// Client implements voice.Agent.
type Client struct {
	baseURL     string
	header      http.Header
	dialer      *websocket.Dialer
	audio       AudioSource
	initTimeout time.Duration
}

func New(opts ...Option) *Client {
	c := &Client{
		baseURL:     DefaultURL,
		dialer:      websocket.DefaultDialer,
		initTimeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// StartSession dials the agent, sends the initiation data and waits for the
// initiation metadata. The session is live once it returns.
func (c *Client) StartSession(ctx context.Context, cfg voice.SessionConfig, notify func(voice.Event)) (voice.Session, error) {
	if strings.TrimSpace(cfg.AgentID) == "" {
		return nil, errors.New("agent id is required")
	}
	if notify == nil {
		notify = func(voice.Event) {}
	}
	wsURL, err := buildURL(c.baseURL, cfg.AgentID)
	if err != nil {
		return nil, err
	}
	conn, resp, err := c.dialer.DialContext(ctx, wsURL, c.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrap(err, "dial voice agent")
	}

	s := &session{
		conn:   conn,
		notify: notify,
		closed: make(chan struct{}),
		status: voice.StatusNotConnected,
	}
	if err := s.writeJSON(initiationClientData{Type: typeInitiationClientData}); err != nil {
		_ = conn.Close()
		return nil, err
	}
	conversationID, err := s.awaitInitiation(ctx, c.initTimeout)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	s.setStatus(voice.StatusConnected)
	log.Info().Str("component", "voice").Str("conversation_id", conversationID).Msg("voice agent conversation started")

	notify(voice.Event{Type: voice.EventConnect})
	go s.readLoop()
	if c.audio != nil {
		pumpCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.stopAudio = cancel
		go s.pumpAudio(pumpCtx, c.audio)
	}
	return s, nil
}

type session struct {
	conn   *websocket.Conn
	notify func(voice.Event)

	writeMu   sync.Mutex
	stopAudio context.CancelFunc

	mu     sync.Mutex
	status voice.Status

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *session) End(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.stopAudio != nil {
			s.stopAudio()
		}
		deadline := time.Now().Add(time.Second)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		s.writeMu.Unlock()
		err = s.conn.Close()
		s.setStatus(voice.StatusNotConnected)
	})
	if err != nil {
		return errors.Wrap(err, "close voice agent connection")
	}
	return nil
}

func (s *session) Status() voice.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *session) setStatus(st voice.Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *session) awaitInitiation(ctx context.Context, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetReadDeadline(deadline)
	defer func() { _ = s.conn.SetReadDeadline(time.Time{}) }()

	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", errors.Wrap(err, "await conversation initiation")
		}
		in, err := decodeInbound(data)
		if err != nil {
			continue
		}
		switch in.Type {
		case typeInitiationMetadata:
			if in.InitiationMetadata != nil {
				return in.InitiationMetadata.ConversationID, nil
			}
			return "", nil
		case typePing:
			s.answerPing(in)
		case typeError:
			return "", errors.Errorf("voice agent refused conversation: %s", in.Message)
		}
	}
}

func (s *session) readLoop() {
	defer func() {
		s.setStatus(voice.StatusNotConnected)
		s.notify(voice.Event{Type: voice.EventDisconnect})
	}()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closed:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("component", "voice").Msg("voice agent connection lost")
					s.notify(voice.Event{Type: voice.EventError, Err: errors.Wrap(err, "voice agent read")})
				}
			}
			return
		}
		in, err := decodeInbound(data)
		if err != nil {
			log.Debug().Err(err).Str("component", "voice").Msg("ignoring undecodable agent frame")
			continue
		}
		switch in.Type {
		case typePing:
			s.answerPing(in)
		case typeAgentResponse:
			if in.AgentResponseEvent != nil {
				s.notify(voice.Event{Type: voice.EventMessage, Message: &voice.AgentMessage{
					Source: voice.SourceAgent, Text: in.AgentResponseEvent.AgentResponse,
				}})
			}
		case typeUserTranscript:
			if in.UserTranscriptionEvent != nil {
				s.notify(voice.Event{Type: voice.EventMessage, Message: &voice.AgentMessage{
					Source: voice.SourceUser, Text: in.UserTranscriptionEvent.UserTranscript,
				}})
			}
		case typeError:
			s.notify(voice.Event{Type: voice.EventError, Err: errors.New(in.Message)})
		case typeAudio, typeInterruption, typeInitiationMetadata:
			// no playback
		default:
			log.Trace().Str("component", "voice").Str("type", in.Type).Msg("unhandled agent frame")
		}
	}
}

func (s *session) answerPing(in inbound) {
	if in.PingEvent == nil {
		return
	}
	if err := s.writeJSON(pong{Type: typePong, EventID: in.PingEvent.EventID}); err != nil {
		log.Debug().Err(err).Str("component", "voice").Msg("pong failed")
	}
}

func (s *session) pumpAudio(ctx context.Context, src AudioSource) {
	rc, err := src.Open(ctx)
	if err != nil {
		log.Error().Err(err).Str("component", "voice").Msg("opening microphone stream failed")
		s.notify(voice.Event{Type: voice.EventError, Err: err})
		return
	}
	defer func() { _ = rc.Close() }()

	buf := make([]byte, audioChunkBytes)
	for {
		n, err := io.ReadFull(rc, buf)
		if n > 0 {
			chunk := userAudioChunk{UserAudioChunk: base64.StdEncoding.EncodeToString(buf[:n])}
			if werr := s.writeJSON(chunk); werr != nil {
				return
			}
		}
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				log.Warn().Err(err).Str("component", "voice").Msg("microphone stream ended")
			}
			return
		}
	}
}

func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode agent frame")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	select {
	case <-s.closed:
		return errors.New("voice agent session closed")
	default:
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap(err, "write agent frame")
	}
	return nil
}

func buildURL(base, agentID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrapf(err, "parse agent url %q", base)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", errors.Errorf("unsupported agent url scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("agent_id", agentID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

var _ voice.Agent = (*Client)(nil)
