package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/chatline/pkg/channel"
	"github.com/go-go-golems/chatline/pkg/chat"
	"github.com/go-go-golems/chatline/pkg/chatview"
	"github.com/go-go-golems/chatline/pkg/relay"
	"github.com/go-go-golems/chatline/pkg/ui"
)

type FeedCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*FeedCommand)(nil)

type FeedSettings struct {
	Conversation  string `glazed:"conversation"`
	Viewer        string `glazed:"viewer"`
	Snapshot      string `glazed:"snapshot"`
	PartnerID     string `glazed:"partner-id"`
	PartnerName   string `glazed:"partner-name"`
	PartnerImage  string `glazed:"partner-image"`
	ViewerAvatar  string `glazed:"viewer-avatar"`
	Dedup         bool   `glazed:"dedup"`
	Plain         bool   `glazed:"plain"`
	MarkdownStyle string `glazed:"markdown-style"`
}

func NewFeedCommand() (*FeedCommand, error) {
	relaySection, err := relay.NewSection()
	if err != nil {
		return nil, errors.Wrap(err, "build relay section")
	}
	desc := cmds.NewCommandDescription(
		"feed",
		cmds.WithShort("Follow a conversation live"),
		cmds.WithLong("Mounts a conversation from an optional snapshot file and applies incoming messages as they arrive on the relay. Opens a terminal UI when stdout is a terminal, prints one line per message otherwise."),
		cmds.WithFlags(
			fields.New("conversation", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Conversation id (defaults to the snapshot's)")),
			fields.New("viewer", fields.TypeString, fields.WithHelp("User id of the viewer; their messages are shown on the right")),
			fields.New("snapshot", fields.TypeString, fields.WithDefault(""), fields.WithHelp("YAML or JSON file with the initial history, newest first")),
			fields.New("partner-id", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Partner user id (used for the call action)")),
			fields.New("partner-name", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Partner display name")),
			fields.New("partner-image", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Partner avatar URL")),
			fields.New("viewer-avatar", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Viewer avatar URL")),
			fields.New("dedup", fields.TypeBool, fields.WithDefault(false), fields.WithHelp("Ignore incoming messages whose id is already in the feed")),
			fields.New("plain", fields.TypeBool, fields.WithDefault(false), fields.WithHelp("Print lines even when attached to a terminal")),
			fields.New("markdown-style", fields.TypeString, fields.WithDefault("notty"), fields.WithHelp("glamour style for message text in plain output")),
		),
		cmds.WithSections(relaySection),
	)
	return &FeedCommand{CommandDescription: desc}, nil
}

func (c *FeedCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	s := &FeedSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "init feed settings")
	}
	rs := relay.Settings{}
	if err := parsed.DecodeSectionInto(relay.SectionSlug, &rs); err != nil {
		return errors.Wrap(err, "init relay settings")
	}

	snap := chat.Snapshot{}
	if s.Snapshot != "" {
		var err error
		if snap, err = chat.LoadSnapshot(s.Snapshot); err != nil {
			return err
		}
	}
	convID := strings.TrimSpace(s.Conversation)
	if convID == "" {
		convID = snap.ConversationID
	}
	if convID == "" {
		return errors.New("--conversation is required when the snapshot does not name one")
	}
	partner := chat.Partner{ID: s.PartnerID, Name: s.PartnerName, Image: s.PartnerImage}
	if snap.Partner != nil && partner.ID == "" {
		partner = *snap.Partner
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := relay.Dial(ctx, rs.URL, relay.WithClientWriteTimeout(rs.WriteTimeout()))
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()
	manager, err := channel.NewManager(client)
	if err != nil {
		return err
	}

	avatars := chat.Avatars{Self: s.ViewerAvatar, Partner: partner.Image}
	opts := []chatview.Option{
		chatview.WithPartner(partner),
		chatview.WithFeedOptions(chat.WithDedup(s.Dedup)),
	}

	tty := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	if tty && !s.Plain {
		return runFeedTUI(ctx, client, manager, s.Viewer, avatars, convID, snap.Messages, opts)
	}

	view, err := chatview.New(manager, s.Viewer, avatars, newLinePrinter(w, s.MarkdownStyle), opts...)
	if err != nil {
		return err
	}
	if err := view.Mount(ctx, convID, snap.Messages); err != nil {
		return err
	}
	defer func() { _ = view.Unmount() }()

	select {
	case <-ctx.Done():
		return nil
	case <-client.Done():
		return client.Err()
	}
}

func runFeedTUI(
	ctx context.Context,
	client *relay.Client,
	manager *channel.Manager,
	viewer string,
	avatars chat.Avatars,
	convID string,
	snapshot []chat.Message,
	opts []chatview.Option,
) error {
	nav := chat.NavigatorFunc(func(_ context.Context, path string) error {
		log.Info().Str("component", "feed").Str("path", path).Msg("navigate")
		return nil
	})
	// the header and rows arrive with the first frame rendered by Mount
	program := tea.NewProgram(ui.NewFeedModel(ctx, chatview.Frame{ConversationID: convID}, nav),
		tea.WithAltScreen(), tea.WithContext(ctx))
	view, err := chatview.New(manager, viewer, avatars, ui.FrameForwarder(program), opts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer cancel()
		_, err := program.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})
	eg.Go(func() error {
		// frames are sent to the running program, so mount after it starts
		if err := view.Mount(ctx, convID, snapshot); err != nil {
			program.Quit()
			return err
		}
		defer func() { _ = view.Unmount() }()
		select {
		case <-ctx.Done():
		case <-client.Done():
			program.Quit()
			return client.Err()
		}
		return nil
	})
	return eg.Wait()
}

// linePrinter prints each message once, oldest first, with the text rendered as
// markdown. The feed only grows at the front, so the new rows of a frame are the
// ones in front of what was already printed.
type linePrinter struct {
	w     io.Writer
	style string

	mu      sync.Mutex
	conv    string
	printed int
}

func newLinePrinter(w io.Writer, style string) *linePrinter {
	if style == "" {
		style = "notty"
	}
	return &linePrinter{w: w, style: style}
}

func (p *linePrinter) Render(f chatview.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f.ConversationID != p.conv {
		p.conv = f.ConversationID
		p.printed = 0
	}
	fresh := len(f.Rows) - p.printed
	for i := fresh - 1; i >= 0; i-- {
		row := f.Rows[i]
		text, err := glamour.Render(row.Message.Text, p.style)
		if err != nil {
			text = row.Message.Text
		}
		who := row.Message.SenderID
		if row.Own {
			who = "me"
		}
		_, _ = fmt.Fprintf(p.w, "[%s] %s: %s\n", row.Time, who, strings.TrimSpace(text))
	}
	p.printed = len(f.Rows)
}
