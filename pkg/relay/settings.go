package relay

import (
	"time"

	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
)

const SectionSlug = "relay"

// Settings configures both ends of the relay. Server-only fields are ignored by
// clients.
type Settings struct {
	URL                string `glazed:"relay-url"`
	Addr               string `glazed:"relay-addr"`
	IdleTimeoutSeconds int    `glazed:"relay-idle-timeout"`
	SendBuffer         int    `glazed:"relay-send-buffer"`
	WriteTimeoutMillis int    `glazed:"relay-write-timeout-ms"`
}

func (s Settings) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutSeconds) * time.Second
}

func (s Settings) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMillis) * time.Millisecond
}

func NewSection() (schema.Section, error) {
	return schema.NewSection(
		SectionSlug,
		"Websocket relay",
		schema.WithFields(
			fields.New("relay-url", fields.TypeString,
				fields.WithDefault("http://localhost:8080"),
				fields.WithHelp("Base URL of the relay (http or ws scheme)")),
			fields.New("relay-addr", fields.TypeString,
				fields.WithDefault(":8080"),
				fields.WithHelp("Listen address for the relay server")),
			fields.New("relay-idle-timeout", fields.TypeInteger,
				fields.WithDefault(30),
				fields.WithHelp("Seconds a channel without listeners keeps its subscription (0 releases immediately)")),
			fields.New("relay-send-buffer", fields.TypeInteger,
				fields.WithDefault(64),
				fields.WithHelp("Frames queued per websocket client before it is dropped")),
			fields.New("relay-write-timeout-ms", fields.TypeInteger,
				fields.WithDefault(5000),
				fields.WithHelp("Websocket write deadline in milliseconds")),
		),
	)
}
