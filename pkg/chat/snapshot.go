package chat

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Snapshot is the on-disk form of a conversation's history, newest message first.
// JSON files load as well since JSON is valid YAML.
type Snapshot struct {
	ConversationID string    `yaml:"conversationId"`
	Partner        *Partner  `yaml:"partner,omitempty"`
	Messages       []Message `yaml:"messages"`
}

func ParseSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Snapshot{}, errors.Wrap(err, "parse snapshot")
	}
	for i, m := range s.Messages {
		if err := m.Validate(); err != nil {
			return Snapshot{}, errors.Wrapf(err, "snapshot message %d", i)
		}
	}
	return s, nil
}

func LoadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, errors.Wrapf(err, "read snapshot %s", path)
	}
	return ParseSnapshot(data)
}
