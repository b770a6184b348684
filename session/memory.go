package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryService keeps sessions in process.
type MemoryService struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

var _ Service = (*MemoryService)(nil)

// NewMemoryService creates an empty in-memory session store.
func NewMemoryService() *MemoryService {
	return &MemoryService{sessions: make(map[string]*Session), now: time.Now}
}

// Create implements Service.
func (m *MemoryService) Create(ctx context.Context, userID string, state map[string]interface{}) (*Session, error) {
	s := newSession(uuid.NewString(), userID, state, m.now().UTC())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return s.clone(), nil
}

// Get implements Service.
func (m *MemoryService) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.clone(), nil
}

// UpdateState implements Service.
func (m *MemoryService) UpdateState(ctx context.Context, id string, delta map[string]interface{}) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	mergeState(s.State, delta)
	s.UpdatedAt = m.now().UTC()
	return s.clone(), nil
}

// Delete implements Service.
func (m *MemoryService) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}
