package redisstream

import (
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
)

// SectionSlug is the slug under which the redis settings are registered.
const SectionSlug = "redis"

// Settings holds Redis Streams transport configuration for the channel relay.
// Every relay instance needs its own consumer group so that each one sees every event.
type Settings struct {
	Enabled  bool   `glazed:"redis-enabled"`
	Addr     string `glazed:"redis-addr"`
	Password string `glazed:"redis-password"`
	DB       int    `glazed:"redis-db"`
	Group    string `glazed:"redis-group"`
	Consumer string `glazed:"redis-consumer"`
}

// NewParameterLayer returns a section definition for Redis Streams settings.
func NewParameterLayer() (schema.Section, error) {
	return schema.NewSection(
		SectionSlug,
		"Redis configuration for Watermill Redis Streams",
		schema.WithFields(
			fields.New("redis-enabled", fields.TypeBool,
				fields.WithDefault(false),
				fields.WithHelp("Carry channel events over Redis Streams instead of in memory")),
			fields.New("redis-addr", fields.TypeString,
				fields.WithDefault("localhost:6379"),
				fields.WithHelp("Redis address host:port")),
			fields.New("redis-password", fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Redis password")),
			fields.New("redis-db", fields.TypeInteger,
				fields.WithDefault(0),
				fields.WithHelp("Redis database number")),
			fields.New("redis-group", fields.TypeString,
				fields.WithDefault("chatline-relay"),
				fields.WithHelp("Redis consumer group (one per relay instance)")),
			fields.New("redis-consumer", fields.TypeString,
				fields.WithDefault("relay-1"),
				fields.WithHelp("Redis consumer name")),
		),
	)
}
