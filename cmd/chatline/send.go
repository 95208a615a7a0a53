package main

import (
	"context"
	"strings"
	"time"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/go-go-golems/chatline/pkg/channel"
	"github.com/go-go-golems/chatline/pkg/chat"
	"github.com/go-go-golems/chatline/pkg/relay"
)

type SendCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*SendCommand)(nil)

type SendSettings struct {
	Conversation string `glazed:"conversation"`
	Sender       string `glazed:"sender"`
	Text         string `glazed:"text"`
	ID           string `glazed:"id"`
}

func NewSendCommand() (*SendCommand, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}
	commandSettingsSection, err := cli.NewCommandSettingsSection()
	if err != nil {
		return nil, err
	}
	relaySection, err := relay.NewSection()
	if err != nil {
		return nil, errors.Wrap(err, "build relay section")
	}
	desc := cmds.NewCommandDescription(
		"send",
		cmds.WithShort("Publish one chat message to a conversation through the relay"),
		cmds.WithFlags(
			fields.New("conversation", fields.TypeString, fields.WithHelp("Conversation id")),
			fields.New("sender", fields.TypeString, fields.WithHelp("Sender user id")),
			fields.New("id", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Message id (random when empty)")),
		),
		cmds.WithArguments(
			fields.New("text", fields.TypeString, fields.WithHelp("Message text")),
		),
		cmds.WithSections(glazedSection, commandSettingsSection, relaySection),
	)
	return &SendCommand{CommandDescription: desc}, nil
}

func (c *SendCommand) RunIntoGlazeProcessor(ctx context.Context, parsed *values.Values, gp middlewares.Processor) error {
	s := &SendSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "init send settings")
	}
	rs := relay.Settings{}
	if err := parsed.DecodeSectionInto(relay.SectionSlug, &rs); err != nil {
		return errors.Wrap(err, "init relay settings")
	}
	if strings.TrimSpace(s.Conversation) == "" {
		return errors.New("--conversation is required")
	}
	msg := chat.Message{
		ID:        strings.TrimSpace(s.ID),
		SenderID:  strings.TrimSpace(s.Sender),
		Text:      s.Text,
		Timestamp: time.Now().UnixMilli(),
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	pub, err := relay.NewHTTPPublisher(rs.URL, nil)
	if err != nil {
		return err
	}
	key := channel.Key(s.Conversation)
	if err := pub.Publish(ctx, key, channel.EventIncomingMessage, msg); err != nil {
		return err
	}

	return gp.AddRow(ctx, types.NewRow(
		types.MRP("channel", key),
		types.MRP("id", msg.ID),
		types.MRP("sender", msg.SenderID),
		types.MRP("timestamp", msg.Timestamp),
	))
}
