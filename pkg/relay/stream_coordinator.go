package relay

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatline/pkg/channel"
)

// StreamCoordinator owns the watermill subscription for one channel key and turns
// each message into an event frame, in order.
type StreamCoordinator struct {
	key        string
	topic      string
	subscriber message.Subscriber
	onFrame    func([]byte)

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

func NewStreamCoordinator(key, topic string, subscriber message.Subscriber, onFrame func([]byte)) *StreamCoordinator {
	return &StreamCoordinator{
		key:        key,
		topic:      topic,
		subscriber: subscriber,
		onFrame:    onFrame,
	}
}

// Start subscribes synchronously so that events published after Start returns are
// not missed, then consumes in the background.
func (sc *StreamCoordinator) Start(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	msgs, err := sc.subscriber.Subscribe(runCtx, sc.topic)
	if err != nil {
		cancel()
		return errors.Wrapf(err, "subscribe %s", sc.topic)
	}
	sc.cancel = cancel
	sc.running = true
	go sc.consume(msgs)
	log.Info().Str("component", "relay").Str("channel", sc.key).Msg("stream coordinator: started")
	return nil
}

func (sc *StreamCoordinator) Stop() {
	sc.mu.Lock()
	if sc.cancel != nil {
		sc.cancel()
	}
	sc.cancel = nil
	sc.running = false
	sc.mu.Unlock()
}

func (sc *StreamCoordinator) consume(msgs <-chan *message.Message) {
	for msg := range msgs {
		name := msg.Metadata.Get(channel.MetadataEvent)
		if name == "" {
			log.Warn().Str("component", "relay").Str("channel", sc.key).Str("uuid", msg.UUID).Msg("stream coordinator: message without event name")
			msg.Ack()
			continue
		}
		frame, err := encodeFrame(Frame{Type: FrameEvent, Channel: sc.key, Event: name, Data: json.RawMessage(msg.Payload)})
		if err != nil {
			// payload is not valid JSON
			log.Warn().Err(err).Str("component", "relay").Str("channel", sc.key).Msg("stream coordinator: dropping event")
			msg.Ack()
			continue
		}
		if sc.onFrame != nil {
			sc.onFrame(frame)
		}
		msg.Ack()
	}
	log.Info().Str("component", "relay").Str("channel", sc.key).Msg("stream coordinator: stopped")
}
