package chat

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var validate = validator.New()

// Message is one chat line. Once added to a Feed it is never mutated.
type Message struct {
	ID        string `json:"id" yaml:"id" validate:"required"`
	SenderID  string `json:"senderId" yaml:"senderId" validate:"required"`
	Text      string `json:"text" yaml:"text"`
	Timestamp int64  `json:"timestamp" yaml:"timestamp"` // unix milliseconds, sender clock
}

// Time returns the sender-clock timestamp as a time.Time.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

func (m Message) Validate() error {
	if err := validate.Struct(m); err != nil {
		return errors.Wrap(err, "invalid message")
	}
	return nil
}

// DecodeMessage parses an incoming-message payload and validates it.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, errors.Wrap(err, "decode message")
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Partner is the other participant of a two-party conversation.
type Partner struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Image string `json:"image" yaml:"image"`
}
