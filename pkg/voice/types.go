package voice

import "context"

type State int

const (
	StateIdle State = iota
	StateAcquiringPermission
	StateConnected
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiringPermission:
		return "acquiring_permission"
	case StateConnected:
		return "connecting_or_connected"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Affordances tells the UI which actions are enabled.
type Affordances struct {
	StartEnabled bool
	StopEnabled  bool
}

type EventType string

const (
	EventConnect      EventType = "connect"
	EventDisconnect   EventType = "disconnect"
	EventMessage      EventType = "message"
	EventError        EventType = "error"
	EventStateChanged EventType = "state-changed"
)

// Source tells who produced an agent message.
type Source string

const (
	SourceAgent Source = "ai"
	SourceUser  Source = "user"
)

type AgentMessage struct {
	Source Source
	Text   string
}

type Event struct {
	Type    EventType
	State   State
	Message *AgentMessage
	Err     error
}

// Microphone grants or refuses capture access. Implementations return errors
// matching ErrPermissionDenied or ErrDeviceUnavailable.
type Microphone interface {
	RequestAccess(ctx context.Context) error
}

type SessionConfig struct {
	AgentID string
}

// Agent opens remote voice conversations. Notifications of the session are passed
// to notify, possibly from another goroutine, until the session disconnects.
type Agent interface {
	StartSession(ctx context.Context, cfg SessionConfig, notify func(Event)) (Session, error)
}

type Status string

const (
	StatusConnected    Status = "connected"
	StatusNotConnected Status = "not-connected"
)

// Session is the handle of one remote conversation.
type Session interface {
	End(ctx context.Context) error
	Status() Status
}
