package chat

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

type Side int

const (
	SideLeft Side = iota
	SideRight
)

func (s Side) String() string {
	if s == SideRight {
		return "right"
	}
	return "left"
}

// Corner names the bubble corner that is squared off to form the tail.
type Corner int

const (
	CornerNone Corner = iota
	CornerTailLeft
	CornerTailRight
)

// Avatars are the image URLs shown next to own and partner messages.
type Avatars struct {
	Self    string
	Partner string
}

// Row is the rendering descriptor of a single message.
type Row struct {
	Message Message
	Own     bool
	// GroupedWithNext is true when the adjacent newer message has the same sender.
	// Only the newest message of a same-sender run shows the avatar and the tail.
	GroupedWithNext bool
	ShowAvatar      bool
	Side            Side
	AvatarURL       string
	Corner          Corner
	Time            string
	// Key is stable across renders of the same message.
	Key string
}

// TimeFormatter turns a message timestamp into display text.
type TimeFormatter interface {
	Format(t time.Time) string
}

type TimeFormatterFunc func(time.Time) string

func (f TimeFormatterFunc) Format(t time.Time) string { return f(t) }

// ClockFormatter renders HH:mm in the given location (local time when nil).
func ClockFormatter(loc *time.Location) TimeFormatter {
	return TimeFormatterFunc(func(t time.Time) string {
		if loc != nil {
			t = t.In(loc)
		}
		return t.Format("15:04")
	})
}

type presentOptions struct {
	formatter TimeFormatter
}

type PresentOption func(*presentOptions)

func WithTimeFormatter(f TimeFormatter) PresentOption {
	return func(o *presentOptions) {
		if f != nil {
			o.formatter = f
		}
	}
}

// Present derives one Row per message of a newest-first feed. It does not mutate
// messages and has no state besides its arguments.
func Present(messages []Message, viewerID string, avatars Avatars, opts ...PresentOption) []Row {
	o := presentOptions{formatter: ClockFormatter(nil)}
	for _, opt := range opts {
		opt(&o)
	}

	return lo.Map(messages, func(m Message, i int) Row {
		own := m.SenderID == viewerID
		grouped := i > 0 && messages[i-1].SenderID == m.SenderID

		row := Row{
			Message:         m,
			Own:             own,
			GroupedWithNext: grouped,
			ShowAvatar:      !grouped,
			Side:            SideLeft,
			AvatarURL:       avatars.Partner,
			Time:            o.formatter.Format(m.Time()),
			Key:             m.ID + "-" + strconv.FormatInt(m.Timestamp, 10),
		}
		if own {
			row.Side = SideRight
			row.AvatarURL = avatars.Self
		}
		if !grouped {
			row.Corner = CornerTailLeft
			if own {
				row.Corner = CornerTailRight
			}
		}
		return row
	})
}

// Header describes the chat header: who the partner is and where the call action
// leads.
type Header struct {
	Partner  Partner
	CallPath string
}

func NewHeader(p Partner) Header {
	return Header{Partner: p, CallPath: CallPath(p.ID)}
}

// CallPath is the call view location for a user.
func CallPath(userID string) string {
	return "/call/" + strings.TrimSpace(userID)
}

// Navigator moves the user to another view.
type Navigator interface {
	Navigate(ctx context.Context, path string) error
}

type NavigatorFunc func(ctx context.Context, path string) error

func (f NavigatorFunc) Navigate(ctx context.Context, path string) error { return f(ctx, path) }

// StartCall navigates to the call view of the partner.
func (h Header) StartCall(ctx context.Context, nav Navigator) error {
	if nav == nil {
		return nil
	}
	return nav.Navigate(ctx, h.CallPath)
}
