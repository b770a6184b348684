// Package memory stores the conversation turns of each catering session so
// that agents can be given recent history.
//
// Implementations:
//   - InMemoryMemory: per-session ring with a size cap
//   - RedisMemory: Redis sorted sets with TTL, shared across instances
package memory

import (
	"context"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
)

// Metadata keys stored with each turn.
const (
	MetadataTags = "tags"
)

// Memory stores and retrieves conversation turns per session.
//
// Example:
//
//	mem := NewInMemoryMemory(200)
//	err := mem.Store(ctx, sessionID, msg, map[string]interface{}{"tags": []string{"flight_info_agent"}})
//	recent, err := mem.Retrieve(ctx, sessionID, RetrieveOptions{Limit: 10})
type Memory interface {
	// Store saves a message with optional metadata. A "tags" entry is used
	// by RetrieveOptions.Tags.
	Store(ctx context.Context, sessionID string, message *agenkit.Message, metadata map[string]interface{}) error

	// Retrieve returns messages most recent first.
	Retrieve(ctx context.Context, sessionID string, opts RetrieveOptions) ([]*agenkit.Message, error)

	// Clear removes all memory for a session.
	Clear(ctx context.Context, sessionID string) error

	// Capabilities lists what the backend supports, e.g. "persistence".
	Capabilities() []string
}

// RetrieveOptions specifies options for retrieving messages.
type RetrieveOptions struct {
	// Limit is the maximum number of messages to return (default: 10)
	Limit int

	// Tags keeps messages carrying any of these tags (optional)
	Tags []string
}

func (o RetrieveOptions) limit() int {
	if o.Limit <= 0 {
		return 10
	}
	return o.Limit
}

// History returns up to limit recent messages in chronological order, ready
// to be passed as agenkit.MetadataHistory.
func History(ctx context.Context, m Memory, sessionID string, limit int) ([]*agenkit.Message, error) {
	recent, err := m.Retrieve(ctx, sessionID, RetrieveOptions{Limit: limit})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent, nil
}

type entry struct {
	Message  *agenkit.Message
	Metadata map[string]interface{}
}

func hasAnyTag(metadata map[string]interface{}, want []string) bool {
	if len(want) == 0 {
		return true
	}
	var tags []string
	switch v := metadata[MetadataTags].(type) {
	case []string:
		tags = v
	case []interface{}:
		for _, t := range v {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
	}
	for _, t := range tags {
		for _, w := range want {
			if t == w {
				return true
			}
		}
	}
	return false
}
