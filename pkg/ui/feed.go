package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatline/pkg/chat"
	"github.com/go-go-golems/chatline/pkg/chatview"
)

// FrameMsg carries a new rendering of the mounted conversation into the program.
type FrameMsg chatview.Frame

// NavigatedMsg reports the outcome of a navigation request.
type NavigatedMsg struct {
	Path string
	Err  error
}

// FeedModel shows one conversation. Rows arrive newest first and are drawn bottom
// up, so the newest message sits right above the help line.
type FeedModel struct {
	ctx       context.Context
	frame     chatview.Frame
	navigator chat.Navigator
	viewport  viewport.Model
	ready     bool
	width     int
	height    int
	status    string
}

func NewFeedModel(ctx context.Context, initial chatview.Frame, nav chat.Navigator) FeedModel {
	return FeedModel{ctx: ctx, frame: initial, navigator: nav}
}

func (m FeedModel) Init() tea.Cmd { return nil }

func (m FeedModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "c":
			return m, m.startCall()
		}
	case FrameMsg:
		m.frame = chatview.Frame(msg)
		m.refresh()
	case NavigatedMsg:
		if msg.Err != nil {
			m.status = errorStyle.Render("call failed: " + msg.Err.Error())
		} else {
			m.status = statusStyle.Render("opened " + msg.Path)
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		h := m.height - 3
		if h < 1 {
			h = 1
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, h)
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = h
		}
		m.refresh()
	}
	if m.ready {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m FeedModel) View() string {
	if !m.ready {
		return "loading…"
	}
	help := helpStyle.Render("c: call • ↑/↓: scroll • q: quit")
	if m.status != "" {
		help = lipgloss.JoinHorizontal(lipgloss.Top, help, "  ", m.status)
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.headerView(), m.viewport.View(), help)
}

func (m FeedModel) headerView() string {
	name := m.frame.Header.Partner.Name
	if name == "" {
		name = m.frame.ConversationID
	}
	return headerStyle.Width(m.width).Render(name)
}

func (m *FeedModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(RenderRows(m.frame.Rows, m.width))
	m.viewport.GotoBottom()
}

func (m FeedModel) startCall() tea.Cmd {
	header, nav, ctx := m.frame.Header, m.navigator, m.ctx
	return func() tea.Msg {
		err := header.StartCall(ctx, nav)
		if err != nil {
			log.Warn().Err(err).Str("component", "ui").Str("path", header.CallPath).Msg("navigation failed")
		}
		return NavigatedMsg{Path: header.CallPath, Err: err}
	}
}

// RenderRows draws a newest-first row list oldest on top.
func RenderRows(rows []chat.Row, width int) string {
	parts := make([]string, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		parts = append(parts, RenderRow(rows[i], width))
	}
	return strings.Join(parts, "\n")
}

// RenderRow draws one bubble on its side. The newest row of a run, the lowest on
// screen, gets the avatar and a squared tail corner; grouped rows are fully rounded
// and indented past the avatar column.
func RenderRow(row chat.Row, width int) string {
	style := partnerBubble
	if row.Own {
		style = ownBubble
	}
	style = style.BorderStyle(bubbleBorder(row.Corner))
	maxText := width/3*2 - 4
	if maxText > 10 {
		style = style.MaxWidth(maxText + 4)
	}
	text := row.Message.Text
	if row.Time != "" {
		text = fmt.Sprintf("%s %s", text, timeStyle.Render(row.Time))
	}
	bubble := style.Render(text)

	avatar := "   "
	if row.ShowAvatar {
		avatar = avatarStyle.Render(avatarGlyph(row)) + "  "
	}
	var line string
	if row.Side == chat.SideRight {
		line = lipgloss.JoinHorizontal(lipgloss.Bottom, bubble, " ", avatar)
	} else {
		line = lipgloss.JoinHorizontal(lipgloss.Bottom, avatar, " ", bubble)
	}
	if width <= 0 {
		return line
	}
	align := lipgloss.Left
	if row.Side == chat.SideRight {
		align = lipgloss.Right
	}
	return lipgloss.PlaceHorizontal(width, align, line)
}

func avatarGlyph(row chat.Row) string {
	name := strings.TrimSpace(row.Message.SenderID)
	if name == "" {
		return "●"
	}
	return strings.ToUpper(string([]rune(name)[0]))
}

func bubbleBorder(c chat.Corner) lipgloss.Border {
	b := lipgloss.RoundedBorder()
	switch c {
	case chat.CornerTailRight:
		b.BottomRight = "┘"
	case chat.CornerTailLeft:
		b.BottomLeft = "└"
	case chat.CornerNone:
	}
	return b
}
