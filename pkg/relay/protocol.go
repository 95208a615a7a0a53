package relay

import (
	"encoding/json"

	"github.com/pkg/errors"
)

type FrameType string

const (
	FrameSubscribe   FrameType = "subscribe"
	FrameUnsubscribe FrameType = "unsubscribe"
	FrameSubscribed  FrameType = "subscribed"
	FrameEvent       FrameType = "event"
	FrameError       FrameType = "error"
)

// Frame is the single envelope used in both directions.
type Frame struct {
	Type    FrameType       `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Event   string          `json:"event,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

func encodeFrame(f Frame) ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s frame", f.Type)
	}
	return b, nil
}

func decodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, errors.Wrap(err, "decode frame")
	}
	if f.Type == "" {
		return Frame{}, errors.New("frame without type")
	}
	return f, nil
}

func errorFrame(key, msg string) []byte {
	b, _ := encodeFrame(Frame{Type: FrameError, Channel: key, Message: msg})
	return b
}
