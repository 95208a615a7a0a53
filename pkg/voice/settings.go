package voice

import (
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
)

const (
	SectionSlug = "voice"
	// EnvPrefix prefixes environment overrides, so agent-id reads CHATLINE_AGENT_ID.
	EnvPrefix = "CHATLINE"
)

type Settings struct {
	AgentID     string `glazed:"agent-id"`
	AgentURL    string `glazed:"agent-url"`
	FFmpegInput string `glazed:"ffmpeg-input"`
	StreamAudio bool   `glazed:"stream-audio"`
}

func NewSection() (schema.Section, error) {
	return schema.NewSection(
		SectionSlug,
		"Voice agent",
		schema.WithFields(
			fields.New("agent-id", fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Voice agent identifier (env "+EnvPrefix+"_AGENT_ID)")),
			fields.New("agent-url", fields.TypeString,
				fields.WithDefault("wss://api.elevenlabs.io/v1/convai/conversation"),
				fields.WithHelp("Websocket endpoint of the voice agent service")),
			fields.New("ffmpeg-input", fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("ffmpeg capture input (empty picks the platform default)")),
			fields.New("stream-audio", fields.TypeBool,
				fields.WithDefault(true),
				fields.WithHelp("Stream microphone audio to the agent")),
		),
	)
}
