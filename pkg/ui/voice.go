package ui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/go-go-golems/chatline/pkg/voice"
)

// VoiceController is the part of voice.Controller the panel drives.
type VoiceController interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State() voice.State
	Affordances() voice.Affordances
	Events() <-chan voice.Event
	LastError() error
}

type voiceEventMsg voice.Event

type actionDoneMsg struct{ err error }

const maxTranscript = 50

// VoiceModel is the voice panel: a start and a stop button whose enabled state
// follows the controller, the connection status and the running transcript.
type VoiceModel struct {
	ctx        context.Context
	ctrl       VoiceController
	spinner    spinner.Model
	state      voice.State
	aff        voice.Affordances
	lastErr    error
	transcript []voice.AgentMessage
}

func NewVoiceModel(ctx context.Context, ctrl VoiceController) VoiceModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return VoiceModel{
		ctx:     ctx,
		ctrl:    ctrl,
		spinner: sp,
		state:   ctrl.State(),
		aff:     ctrl.Affordances(),
	}
}

func (m VoiceModel) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent(), m.spinner.Tick)
}

func (m VoiceModel) waitForEvent() tea.Cmd {
	events := m.ctrl.Events()
	return func() tea.Msg {
		return voiceEventMsg(<-events)
	}
}

func (m VoiceModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			ctrl, ctx := m.ctrl, m.ctx
			return m, tea.Sequence(func() tea.Msg {
				_ = ctrl.Stop(ctx)
				return nil
			}, tea.Quit)
		case "s":
			if !m.aff.StartEnabled {
				return m, nil
			}
			m.aff = voice.Affordances{}
			ctrl, ctx := m.ctrl, m.ctx
			return m, func() tea.Msg { return actionDoneMsg{err: ctrl.Start(ctx)} }
		case "x":
			if !m.aff.StopEnabled {
				return m, nil
			}
			ctrl, ctx := m.ctrl, m.ctx
			return m, func() tea.Msg { return actionDoneMsg{err: ctrl.Stop(ctx)} }
		}
	case voiceEventMsg:
		if msg.Type == voice.EventMessage && msg.Message != nil {
			m.transcript = append(m.transcript, *msg.Message)
			if len(m.transcript) > maxTranscript {
				m.transcript = m.transcript[len(m.transcript)-maxTranscript:]
			}
		}
		m.sync()
		return m, m.waitForEvent()
	case actionDoneMsg:
		m.sync()
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *VoiceModel) sync() {
	m.state = m.ctrl.State()
	m.aff = m.ctrl.Affordances()
	m.lastErr = m.ctrl.LastError()
}

func (m VoiceModel) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Voice agent"))
	b.WriteString("\n\n")

	start, stop := disabledButton, disabledButton
	if m.aff.StartEnabled {
		start = enabledButton
	}
	if m.aff.StopEnabled {
		stop = enabledButton
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		start.Render("Start conversation (s)"), " ", stop.Render("Stop conversation (x)")))
	b.WriteString("\n")

	switch m.state {
	case voice.StateConnected:
		b.WriteString(statusStyle.Render("Connected"))
	case voice.StateAcquiringPermission:
		b.WriteString(m.spinner.View() + statusStyle.Render(" Requesting microphone…"))
	default:
		b.WriteString(statusStyle.Render("Disconnected"))
	}
	b.WriteString("\n")
	if m.lastErr != nil {
		b.WriteString(errorStyle.Render(m.lastErr.Error()))
		b.WriteString("\n")
	}
	for _, line := range m.transcript {
		who := "agent"
		if line.Source == voice.SourceUser {
			who = "you"
		}
		b.WriteString("\n" + avatarStyle.Render(who+": ") + line.Text)
	}
	b.WriteString("\n\n" + helpStyle.Render("s: start • x: stop • q: quit"))
	return b.String()
}
