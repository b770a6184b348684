package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
)

// InMemoryMemory keeps turns in process. The oldest turn of a session is
// evicted once maxSize is reached.
type InMemoryMemory struct {
	maxSize int
	mu      sync.RWMutex
	storage map[string][]entry
}

// NewInMemoryMemory creates a memory holding at most maxSize turns per
// session.
func NewInMemoryMemory(maxSize int) *InMemoryMemory {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &InMemoryMemory{
		maxSize: maxSize,
		storage: make(map[string][]entry),
	}
}

// Store saves a message.
func (m *InMemoryMemory) Store(ctx context.Context, sessionID string, message *agenkit.Message, metadata map[string]interface{}) error {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	turns := append(m.storage[sessionID], entry{Message: message, Metadata: metadata})
	if len(turns) > m.maxSize {
		turns = turns[len(turns)-m.maxSize:]
	}
	m.storage[sessionID] = turns
	return nil
}

// Retrieve returns messages most recent first.
func (m *InMemoryMemory) Retrieve(ctx context.Context, sessionID string, opts RetrieveOptions) ([]*agenkit.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	turns := m.storage[sessionID]
	limit := opts.limit()
	out := make([]*agenkit.Message, 0, min(limit, len(turns)))
	for i := len(turns) - 1; i >= 0 && len(out) < limit; i-- {
		if hasAnyTag(turns[i].Metadata, opts.Tags) {
			out = append(out, turns[i].Message)
		}
	}
	return out, nil
}

// Clear removes all memory for a session.
func (m *InMemoryMemory) Clear(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.storage, sessionID)
	return nil
}

// Capabilities returns the memory capabilities.
func (m *InMemoryMemory) Capabilities() []string {
	return []string{"basic_retrieval", "tag_filtering"}
}

// Sessions returns the IDs of sessions with stored turns, sorted.
func (m *InMemoryMemory) Sessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]string, 0, len(m.storage))
	for id := range m.storage {
		sessions = append(sessions, id)
	}
	sort.Strings(sessions)
	return sessions
}
