// Package session keeps the per-user state the catering agents read their
// instruction placeholders from.
package session

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Application defaults.
const (
	AppName       = "catering_management_system"
	DefaultUserID = "EMP123"
)

// Well-known state keys.
const (
	StateUserName      = "user_name"
	StateLanguage      = "user_preference_language"
	StateCurrency      = "user_preference_currency"
	StateRole          = "user_role"
	StateAccessibility = "user_accessibility"
	StateStation       = "user_accessibility.station"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// Session is one user's conversation with the assistant.
type Session struct {
	ID        string                 `json:"id"`
	AppName   string                 `json:"app_name"`
	UserID    string                 `json:"user_id"`
	State     map[string]interface{} `json:"state"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// DefaultState returns the state a new session starts with.
func DefaultState() map[string]interface{} {
	return map[string]interface{}{
		StateUserName: "John Doe",
		StateLanguage: "English",
		StateCurrency: "USD",
		StateRole:     "caterer",
		StateAccessibility: map[string]interface{}{
			"station": "DXB, MAA",
		},
	}
}

// Lookup resolves a dotted path such as "user_accessibility.station" in the
// session state.
func (s *Session) Lookup(path string) (interface{}, bool) {
	if s == nil {
		return nil, false
	}
	var cur interface{} = s.State
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Service stores sessions.
type Service interface {
	// Create starts a session. An empty userID uses DefaultUserID and a nil
	// state uses DefaultState.
	Create(ctx context.Context, userID string, state map[string]interface{}) (*Session, error)

	// Get returns a session or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// UpdateState merges delta into the session state. Nested maps are
	// merged key by key.
	UpdateState(ctx context.Context, id string, delta map[string]interface{}) (*Session, error)

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error
}

func copyState(state map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(state))
	for k, v := range state {
		if m, ok := v.(map[string]interface{}); ok {
			v = copyState(m)
		}
		out[k] = v
	}
	return out
}

func mergeState(dst, delta map[string]interface{}) {
	for k, v := range delta {
		if dm, ok := v.(map[string]interface{}); ok {
			if cur, ok := dst[k].(map[string]interface{}); ok {
				mergeState(cur, dm)
				continue
			}
			v = copyState(dm)
		}
		dst[k] = v
	}
}

func newSession(id, userID string, state map[string]interface{}, now time.Time) *Session {
	if userID == "" {
		userID = DefaultUserID
	}
	if state == nil {
		state = DefaultState()
	}
	return &Session{
		ID:        id,
		AppName:   AppName,
		UserID:    userID,
		State:     copyState(state),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Session) clone() *Session {
	c := *s
	c.State = copyState(s.State)
	return &c
}
