package channel

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Publisher is the sending side of a channel: it marshals payloads and publishes
// them to the channel's topic with the event name in the metadata.
type Publisher struct {
	publisher message.Publisher
	topicFn   func(string) string
}

func NewPublisher(pub message.Publisher, opts ...PubSubOption) (*Publisher, error) {
	if pub == nil {
		return nil, errors.New("publisher is nil")
	}
	return &Publisher{publisher: pub, topicFn: newPubSubConfig(opts).topicFn}, nil
}

func (p *Publisher) Publish(key, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal event payload")
	}
	return p.PublishRaw(key, event, data)
}

func (p *Publisher) PublishRaw(key, event string, data []byte) error {
	if key == "" {
		return errors.New("empty channel key")
	}
	if event == "" {
		return errors.New("empty event name")
	}
	msg := message.NewMessage(uuid.NewString(), data)
	msg.Metadata.Set(MetadataEvent, event)
	if err := p.publisher.Publish(p.topicFn(key), msg); err != nil {
		return errors.Wrapf(err, "publish %s/%s", key, event)
	}
	return nil
}
