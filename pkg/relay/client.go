package relay

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatline/pkg/channel"
)

type clientConfig struct {
	header       http.Header
	dialer       *websocket.Dialer
	writeTimeout time.Duration
}

type ClientOption func(*clientConfig)

func WithHeader(h http.Header) ClientOption {
	return func(c *clientConfig) { c.header = h }
}

func WithDialer(d *websocket.Dialer) ClientOption {
	return func(c *clientConfig) {
		if d != nil {
			c.dialer = d
		}
	}
}

func WithClientWriteTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.writeTimeout = d }
}

// Client is a channel.Transport backed by a relay websocket. Events are dispatched
// from the single read goroutine, in the order the relay sent them. A lost
// connection is not redialed; Done and Err report it.
type Client struct {
	conn         *websocket.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration

	mu       sync.Mutex
	channels map[string]*channel.Bindings
	pending  map[string]chan error

	closeOnce sync.Once
	done      chan struct{}
	err       error
}

// Dial connects to the relay at rawURL. http and https base URLs are mapped to
// their websocket scheme and "/ws" is used when no path is given.
func Dial(ctx context.Context, rawURL string, opts ...ClientOption) (*Client, error) {
	cfg := clientConfig{
		dialer:       websocket.DefaultDialer,
		writeTimeout: 5 * time.Second,
	}
	for _, o := range opts {
		o(&cfg)
	}
	wsURL, err := WebsocketURL(rawURL)
	if err != nil {
		return nil, err
	}
	conn, resp, err := cfg.dialer.DialContext(ctx, wsURL, cfg.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "dial relay %s", wsURL)
	}
	conn.SetReadLimit(maxFrameBytes)
	c := &Client{
		conn:         conn,
		writeTimeout: cfg.writeTimeout,
		channels:     map[string]*channel.Bindings{},
		pending:      map[string]chan error{},
		done:         make(chan struct{}),
	}
	go c.readLoop()
	log.Debug().Str("component", "relay").Str("url", wsURL).Msg("relay client connected")
	return c, nil
}

// Subscribe asks the relay for key and waits for its acknowledgement.
func (c *Client) Subscribe(ctx context.Context, key string) (channel.Channel, error) {
	if key == "" {
		return nil, errors.New("empty channel key")
	}
	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return nil, channel.ErrClosed
	default:
	}
	if _, waiting := c.pending[key]; waiting {
		c.mu.Unlock()
		return nil, errors.Errorf("subscribe %s already in progress", key)
	}
	if b, ok := c.channels[key]; ok {
		c.mu.Unlock()
		return b, nil
	}
	b := channel.NewBindings(key)
	ack := make(chan error, 1)
	c.channels[key] = b
	c.pending[key] = ack
	c.mu.Unlock()

	if err := c.writeFrame(Frame{Type: FrameSubscribe, Channel: key}); err != nil {
		c.forget(key)
		return nil, err
	}
	select {
	case err := <-ack:
		if err != nil {
			c.forget(key)
			return nil, errors.Wrapf(err, "subscribe %s", key)
		}
		return b, nil
	case <-ctx.Done():
		c.forget(key)
		_ = c.writeFrame(Frame{Type: FrameUnsubscribe, Channel: key})
		return nil, ctx.Err()
	case <-c.done:
		c.forget(key)
		return nil, channel.ErrClosed
	}
}

// Unsubscribe deactivates every binding on key before telling the relay, so no
// event reaches a handler once it returns.
func (c *Client) Unsubscribe(key string) error {
	c.mu.Lock()
	b, ok := c.channels[key]
	delete(c.channels, key)
	c.mu.Unlock()
	if !ok {
		return channel.ErrNotSubscribed
	}
	b.UnbindAll()
	select {
	case <-c.done:
		return nil
	default:
	}
	return c.writeFrame(Frame{Type: FrameUnsubscribe, Channel: key})
}

func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the reason the connection ended, nil while it is open or after Close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.shutdown(nil)
	return nil
}

func (c *Client) forget(key string) {
	c.mu.Lock()
	delete(c.pending, key)
	if b, ok := c.channels[key]; ok {
		delete(c.channels, key)
		b.UnbindAll()
	}
	c.mu.Unlock()
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		for key, ack := range c.pending {
			ack <- channel.ErrClosed
			delete(c.pending, key)
		}
		for _, b := range c.channels {
			b.UnbindAll()
		}
		c.channels = map[string]*channel.Bindings{}
		close(c.done)
		c.mu.Unlock()
		_ = c.conn.Close()
	})
}

func (c *Client) writeFrame(f Frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrapf(err, "write %s frame", f.Type)
	}
	return nil
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				select {
				case <-c.done:
				default:
					log.Warn().Err(err).Str("component", "relay").Msg("relay connection lost")
				}
			}
			c.shutdown(errors.Wrap(err, "relay read"))
			return
		}
		f, err := decodeFrame(data)
		if err != nil {
			log.Warn().Err(err).Str("component", "relay").Msg("dropping malformed frame")
			continue
		}
		c.handleFrame(f)
	}
}

func (c *Client) handleFrame(f Frame) {
	switch f.Type {
	case FrameSubscribed:
		c.resolve(f.Channel, nil)
	case FrameError:
		if !c.resolve(f.Channel, errors.New(f.Message)) {
			log.Warn().Str("component", "relay").Str("channel", f.Channel).Str("message", f.Message).Msg("relay error")
		}
	case FrameEvent:
		c.mu.Lock()
		b := c.channels[f.Channel]
		c.mu.Unlock()
		if b == nil {
			return
		}
		b.Dispatch(channel.Event{Channel: f.Channel, Name: f.Event, Data: []byte(f.Data)})
	case FrameSubscribe, FrameUnsubscribe:
		log.Warn().Str("component", "relay").Str("type", string(f.Type)).Msg("unexpected frame from relay")
	}
}

func (c *Client) resolve(key string, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ack, ok := c.pending[key]
	if !ok {
		return false
	}
	delete(c.pending, key)
	ack <- err
	return true
}

// WebsocketURL turns a relay base URL into its websocket endpoint.
func WebsocketURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", errors.Wrapf(err, "parse relay url %q", raw)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.Errorf("unsupported relay url scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

var _ channel.Transport = (*Client)(nil)
