package agent

import (
	"encoding/json"
)

// Wire messages of the conversational agent websocket.
const (
	typeInitiationClientData = "conversation_initiation_client_data"
	typeInitiationMetadata   = "conversation_initiation_metadata"
	typePing                 = "ping"
	typePong                 = "pong"
	typeAgentResponse        = "agent_response"
	typeUserTranscript       = "user_transcript"
	typeAudio                = "audio"
	typeInterruption         = "interruption"
	typeError                = "error"
)

type inbound struct {
	Type string `json:"type"`

	InitiationMetadata *struct {
		ConversationID         string `json:"conversation_id"`
		AgentOutputAudioFormat string `json:"agent_output_audio_format"`
		UserInputAudioFormat   string `json:"user_input_audio_format"`
	} `json:"conversation_initiation_metadata_event,omitempty"`

	PingEvent *struct {
		EventID int64 `json:"event_id"`
		PingMS  int64 `json:"ping_ms"`
	} `json:"ping_event,omitempty"`

	AgentResponseEvent *struct {
		AgentResponse string `json:"agent_response"`
	} `json:"agent_response_event,omitempty"`

	UserTranscriptionEvent *struct {
		UserTranscript string `json:"user_transcript"`
	} `json:"user_transcription_event,omitempty"`

	Message string `json:"message,omitempty"`
}

type initiationClientData struct {
	Type                       string         `json:"type"`
	ConversationConfigOverride map[string]any `json:"conversation_config_override,omitempty"`
	DynamicVariables           map[string]any `json:"dynamic_variables,omitempty"`
}

type pong struct {
	Type    string `json:"type"`
	EventID int64  `json:"event_id"`
}

type userAudioChunk struct {
	UserAudioChunk string `json:"user_audio_chunk"`
}

func decodeInbound(data []byte) (inbound, error) {
	var in inbound
	err := json.Unmarshal(data, &in)
	return in, err
}
