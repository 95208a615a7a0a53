// Package chatview mounts one conversation: it owns the message feed, keeps exactly
// one live subscription for the mounted conversation, and re-renders the presented
// rows whenever the feed changes.
package chatview

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatline/pkg/channel"
	"github.com/go-go-golems/chatline/pkg/chat"
)

// Frame is what a renderer receives on every change.
type Frame struct {
	ConversationID string
	Header         chat.Header
	Rows           []chat.Row
}

type Renderer interface {
	Render(Frame)
}

type RendererFunc func(Frame)

func (f RendererFunc) Render(fr Frame) { f(fr) }

type Option func(*View)

func WithFeedOptions(opts ...chat.FeedOption) Option {
	return func(v *View) { v.feedOpts = append(v.feedOpts, opts...) }
}

func WithPresentOptions(opts ...chat.PresentOption) Option {
	return func(v *View) { v.presentOpts = append(v.presentOpts, opts...) }
}

func WithPartner(p chat.Partner) Option {
	return func(v *View) { v.header = chat.NewHeader(p) }
}

type View struct {
	manager     *channel.Manager
	viewerID    string
	avatars     chat.Avatars
	renderer    Renderer
	header      chat.Header
	feedOpts    []chat.FeedOption
	presentOpts []chat.PresentOption

	feed   *chat.Feed
	convID atomic.Value

	// mu serializes mount and unmount; rendering never takes it.
	mu     sync.Mutex
	handle *channel.Handle
}

func New(manager *channel.Manager, viewerID string, avatars chat.Avatars, renderer Renderer, opts ...Option) (*View, error) {
	if manager == nil {
		return nil, errors.New("chat view needs a subscription manager")
	}
	if strings.TrimSpace(viewerID) == "" {
		return nil, errors.New("chat view needs a viewer id")
	}
	v := &View{
		manager:  manager,
		viewerID: viewerID,
		avatars:  avatars,
		renderer: renderer,
	}
	for _, o := range opts {
		o(v)
	}
	feedOpts := append([]chat.FeedOption{chat.WithOnChange(v.render)}, v.feedOpts...)
	v.feed = chat.NewFeed(nil, feedOpts...)
	return v, nil
}

// Mount shows conversationID starting from snapshot. Mounting another conversation
// detaches the previous subscription before the feed is reset, so nothing from the
// old conversation lands in the new feed.
func (v *View) Mount(ctx context.Context, conversationID string, snapshot []chat.Message) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.handle != nil {
		if err := v.manager.Detach(v.handle); err != nil {
			log.Warn().Err(err).Str("component", "chatview").Str("conv_id", v.ConversationID()).Msg("detach on remount failed")
		}
		v.handle = nil
	}
	v.convID.Store(conversationID)
	v.feed.Initialize(snapshot)

	h, err := v.manager.Attach(ctx, conversationID, v.onEvent)
	if err != nil {
		return errors.Wrapf(err, "mount conversation %s", conversationID)
	}
	v.handle = h
	log.Debug().Str("component", "chatview").Str("conv_id", conversationID).Int("snapshot", len(snapshot)).Msg("conversation mounted")
	return nil
}

// Unmount releases the subscription. The feed keeps its last content.
func (v *View) Unmount() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.handle == nil {
		return nil
	}
	err := v.manager.Detach(v.handle)
	v.handle = nil
	return err
}

func (v *View) ConversationID() string {
	id, _ := v.convID.Load().(string)
	return id
}

func (v *View) Mounted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.handle != nil
}

func (v *View) Header() chat.Header { return v.header }

func (v *View) Feed() *chat.Feed { return v.feed }

// Frame presents the current feed.
func (v *View) Frame() Frame {
	return v.frame(v.feed.Messages())
}

func (v *View) frame(messages []chat.Message) Frame {
	return Frame{
		ConversationID: v.ConversationID(),
		Header:         v.header,
		Rows:           chat.Present(messages, v.viewerID, v.avatars, v.presentOpts...),
	}
}

func (v *View) onEvent(ev channel.Event) {
	msg, err := chat.DecodeMessage(ev.Data)
	if err != nil {
		log.Warn().Err(err).Str("component", "chatview").Str("channel", ev.Channel).Msg("dropping malformed message")
		return
	}
	if !v.feed.OnIncoming(msg) {
		log.Debug().Str("component", "chatview").Str("id", msg.ID).Msg("duplicate message ignored")
	}
}

func (v *View) render(messages []chat.Message) {
	if v.renderer == nil {
		return
	}
	v.renderer.Render(v.frame(messages))
}
