// Package voice drives a microphone-based conversation with a remote voice agent.
//
// The Controller is a small state machine:
//
//	idle/ended --Start--> acquiring_permission --granted+started--> connecting_or_connected
//	connecting_or_connected --Stop or remote disconnect--> ended
//
// Any failure on the way up returns to idle without a session handle. Remote
// notifications and state changes are delivered on Events.
package voice

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Option func(*Controller)

func WithAgentID(id string) Option {
	return func(c *Controller) { c.agentID = strings.TrimSpace(id) }
}

func WithEventBuffer(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.events = make(chan Event, n)
		}
	}
}

type Controller struct {
	mic     Microphone
	agent   Agent
	agentID string
	events  chan Event

	mu      sync.Mutex
	state   State
	session Session
	gen     uint64
	lastErr error
}

func NewController(mic Microphone, agent Agent, opts ...Option) (*Controller, error) {
	if mic == nil {
		return nil, errors.New("voice controller needs a microphone")
	}
	if agent == nil {
		return nil, errors.New("voice controller needs an agent")
	}
	c := &Controller{
		mic:    mic,
		agent:  agent,
		events: make(chan Event, 64),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Start acquires the microphone and opens a session. A Start while another one is
// in progress, or while connected, returns nil without side effects.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateAcquiringPermission || c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateAcquiringPermission
	c.gen++
	gen := c.gen
	c.mu.Unlock()
	c.emit(Event{Type: EventStateChanged, State: StateAcquiringPermission})

	if err := c.mic.RequestAccess(ctx); err != nil {
		return c.fail(classifyMicError(err))
	}
	if c.agentID == "" {
		return c.fail(newError(ErrConfigurationMissing, nil))
	}

	session, err := c.agent.StartSession(ctx, SessionConfig{AgentID: c.agentID}, c.notifier(gen))
	if err != nil {
		return c.fail(newError(ErrSessionStartFailed, err))
	}
	if session == nil {
		return c.fail(newError(ErrSessionStartFailed, errors.New("agent returned no session")))
	}

	c.mu.Lock()
	if c.gen != gen {
		// the session disconnected before start returned
		c.mu.Unlock()
		_ = session.End(context.WithoutCancel(ctx))
		return c.fail(newError(ErrSessionStartFailed, errors.New("session closed during start")))
	}
	c.session = session
	c.state = StateConnected
	c.lastErr = nil
	c.mu.Unlock()

	log.Info().Str("component", "voice").Str("agent_id", c.agentID).Msg("voice session started")
	c.emit(Event{Type: EventStateChanged, State: StateConnected})
	return nil
}

// Stop ends the session. Outside of connecting_or_connected it does nothing.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateConnected || c.session == nil {
		c.mu.Unlock()
		return nil
	}
	session := c.session
	c.session = nil
	c.state = StateEnded
	c.gen++
	c.mu.Unlock()

	err := session.End(ctx)
	c.emit(Event{Type: EventStateChanged, State: StateEnded})
	if err != nil {
		log.Warn().Err(err).Str("component", "voice").Msg("ending voice session failed")
		return errors.Wrap(err, "end voice session")
	}
	log.Info().Str("component", "voice").Msg("voice session stopped")
	return nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Affordances() Affordances {
	switch c.State() {
	case StateConnected:
		return Affordances{StopEnabled: true}
	case StateAcquiringPermission:
		return Affordances{}
	default:
		return Affordances{StartEnabled: true}
	}
}

// LastError is the failure of the latest Start, cleared by the next successful one.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Events delivers remote notifications and state changes. The channel is never
// closed; when it is full, events are dropped.
func (c *Controller) Events() <-chan Event {
	return c.events
}

func (c *Controller) fail(err *Error) error {
	c.mu.Lock()
	c.state = StateIdle
	c.session = nil
	c.lastErr = err
	c.mu.Unlock()

	log.Error().Err(err).Str("component", "voice").Msg("voice session start failed")
	c.emit(Event{Type: EventError, State: StateIdle, Err: err})
	c.emit(Event{Type: EventStateChanged, State: StateIdle})
	return err
}

// notifier binds remote notifications to the session generation that started
// them, so a late disconnect of an old session cannot end a newer one.
func (c *Controller) notifier(gen uint64) func(Event) {
	return func(ev Event) {
		if ev.Type != EventDisconnect {
			c.mu.Lock()
			ev.State = c.state
			c.mu.Unlock()
			c.emit(ev)
			return
		}
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.gen++
		c.session = nil
		if c.state == StateConnected {
			c.state = StateEnded
		}
		state := c.state
		c.mu.Unlock()

		log.Info().Str("component", "voice").Msg("voice session disconnected by remote")
		ev.State = state
		c.emit(ev)
		c.emit(Event{Type: EventStateChanged, State: state})
	}
}

func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		log.Warn().Str("component", "voice").Str("type", string(ev.Type)).Msg("voice event dropped, consumer too slow")
	}
}
