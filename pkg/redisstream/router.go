package redisstream

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatline/pkg/channel"
)

// PubSub bundles the publisher and subscriber a relay runs on.
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	closers    []func() error

	client redis.UniversalClient
	group  string
}

// EnsureGroupAtTail prepares stream for the relay's consumer group. It is a no-op for
// the in-memory transport.
func (p *PubSub) EnsureGroupAtTail(ctx context.Context, stream string) error {
	if p.client == nil {
		return nil
	}
	return EnsureGroupAtTail(ctx, p.client, p.group, stream)
}

// Close closes the publisher, the subscriber and any client they share.
func (p *PubSub) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func newClient(s Settings) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: s.Addr, Password: s.Password, DB: s.DB})
}

func logger() watermill.LoggerAdapter {
	return channel.NewWatermillLogger(log.Logger)
}

// BuildPubSub constructs the relay's watermill backend. With redis disabled it returns
// an in-memory gochannel that waits for each subscriber to ack, which keeps publish
// order per channel.
func BuildPubSub(s Settings) (*PubSub, error) {
	if !s.Enabled {
		gc := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            256,
			BlockPublishUntilSubscriberAck: true,
		}, logger())
		return &PubSub{Publisher: gc, Subscriber: gc, closers: []func() error{gc.Close}}, nil
	}

	client := newClient(s)
	pub, err := buildPublisher(client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	sub, err := buildSubscriber(client, s.Group, s.Consumer)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, err
	}
	log.Info().Str("component", "redisstream").Str("addr", s.Addr).Str("group", s.Group).
		Str("consumer", s.Consumer).Msg("redis streams transport enabled")
	return &PubSub{
		Publisher:  pub,
		Subscriber: sub,
		closers:    []func() error{sub.Close, pub.Close, client.Close},
		client:     client,
		group:      s.Group,
	}, nil
}

func buildPublisher(client redis.UniversalClient) (*rstream.Publisher, error) {
	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: rstream.DefaultMarshallerUnmarshaller{},
	}, logger())
	if err != nil {
		return nil, errors.Wrap(err, "redis stream publisher")
	}
	return pub, nil
}

func buildSubscriber(client redis.UniversalClient, group, consumer string) (*rstream.Subscriber, error) {
	if group == "" || consumer == "" {
		return nil, errors.New("redis consumer group and consumer name are required")
	}
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  rstream.DefaultMarshallerUnmarshaller{},
		ConsumerGroup: group,
		Consumer:      consumer,
	}, logger())
	if err != nil {
		return nil, errors.Wrap(err, "redis stream subscriber")
	}
	return sub, nil
}

// EnsureGroupAtTail creates the consumer group for a channel stream at the tail ($) if it
// doesn't exist, so a freshly subscribed relay does not replay the conversation history.
func EnsureGroupAtTail(ctx context.Context, client redis.UniversalClient, group, stream string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrapf(err, "create group %s on %s", group, stream)
	}
	log.Info().Str("component", "redisstream").Str("stream", stream).Str("group", group).
		Msg("created redis consumer group at $ (tail)")
	return nil
}
