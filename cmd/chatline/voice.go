package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"

	"github.com/go-go-golems/chatline/pkg/ui"
	"github.com/go-go-golems/chatline/pkg/voice"
	"github.com/go-go-golems/chatline/pkg/voice/agent"
	"github.com/go-go-golems/chatline/pkg/voice/mic"
)

type VoiceCommand struct {
	*cmds.CommandDescription
}

var _ cmds.BareCommand = (*VoiceCommand)(nil)

func NewVoiceCommand() (*VoiceCommand, error) {
	voiceSection, err := voice.NewSection()
	if err != nil {
		return nil, errors.Wrap(err, "build voice section")
	}
	desc := cmds.NewCommandDescription(
		"voice",
		cmds.WithShort("Talk to a remote voice agent"),
		cmds.WithLong("Opens the voice panel: s starts a conversation once the microphone is available, x ends it."),
		cmds.WithSections(voiceSection),
	)
	return &VoiceCommand{CommandDescription: desc}, nil
}

func (c *VoiceCommand) Run(ctx context.Context, parsed *values.Values) error {
	s := voice.Settings{}
	if err := parsed.DecodeSectionInto(voice.SectionSlug, &s); err != nil {
		return errors.Wrap(err, "init voice settings")
	}

	microphone := mic.New(mic.WithInput(s.FFmpegInput))
	agentOpts := []agent.Option{agent.WithURL(s.AgentURL)}
	if s.StreamAudio {
		agentOpts = append(agentOpts, agent.WithAudioSource(microphone))
	}
	ctrl, err := voice.NewController(microphone, agent.New(agentOpts...), voice.WithAgentID(s.AgentID))
	if err != nil {
		return err
	}
	defer func() { _ = ctrl.Stop(context.WithoutCancel(ctx)) }()

	_, err = tea.NewProgram(ui.NewVoiceModel(ctx, ctrl), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
