// Package catering assembles the airline catering assistant: the tools over
// the catalog, export and knowledge backends, the routed agent tree, and the
// session-aware Assistant that fronts it.
package catering

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
	"github.com/scttfrdmn/catering-agent-go/memory"
	"github.com/scttfrdmn/catering-agent-go/observability"
	"github.com/scttfrdmn/catering-agent-go/patterns"
	"github.com/scttfrdmn/catering-agent-go/session"
)

// DefaultHistoryLimit is how many earlier messages accompany a request.
const DefaultHistoryLimit = 10

// Assistant answers user messages within a session.
type Assistant struct {
	root         agenkit.Agent
	sessions     session.Service
	memory       memory.Memory
	audit        *observability.AuditLogger
	historyLimit int
	logger       *slog.Logger
}

// AssistantOption configures an Assistant.
type AssistantOption func(*Assistant)

// WithHistoryLimit sets how many earlier messages are sent with a request.
func WithHistoryLimit(n int) AssistantOption {
	return func(a *Assistant) { a.historyLimit = n }
}

// WithAudit records session events to an audit logger.
func WithAudit(audit *observability.AuditLogger) AssistantOption {
	return func(a *Assistant) { a.audit = audit }
}

// WithAssistantLogger sets the logger.
func WithAssistantLogger(logger *slog.Logger) AssistantOption {
	return func(a *Assistant) { a.logger = logger }
}

// NewAssistant creates an assistant over an agent tree. A nil memory keeps
// the last 100 messages per session in process.
func NewAssistant(root agenkit.Agent, sessions session.Service, mem memory.Memory, opts ...AssistantOption) *Assistant {
	if mem == nil {
		mem = memory.NewInMemoryMemory(100)
	}
	a := &Assistant{
		root:         root,
		sessions:     sessions,
		memory:       mem,
		historyLimit: DefaultHistoryLimit,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Root returns the agent tree.
func (a *Assistant) Root() agenkit.Agent {
	return a.root
}

// Sessions returns the session store.
func (a *Assistant) Sessions() session.Service {
	return a.sessions
}

// StartSession creates a session for userID with the default state merged
// with state.
func (a *Assistant) StartSession(ctx context.Context, userID string, state map[string]interface{}) (*session.Session, error) {
	s, err := a.sessions.Create(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	if len(state) > 0 {
		if s, err = a.sessions.UpdateState(ctx, s.ID, state); err != nil {
			return nil, err
		}
	}
	if a.audit != nil {
		a.audit.LogSessionCreated(ctx, s.UserID, s.ID)
	}
	a.logger.Info("session created", "session_id", s.ID, "user_id", s.UserID)
	return s, nil
}

// Ask sends text to the agent tree within a session and records both sides
// of the exchange. Unknown sessions return session.ErrNotFound.
func (a *Assistant) Ask(ctx context.Context, sessionID, text string) (*agenkit.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("message cannot be empty")
	}
	s, err := a.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	msg, err := agenkit.NewValidatedMessage(agenkit.RoleUser, text)
	if err != nil {
		return nil, err
	}
	history, err := memory.History(ctx, a.memory, s.ID, a.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	msg.WithMetadata(agenkit.MetadataSessionID, s.ID).
		WithMetadata(agenkit.MetadataUserID, s.UserID).
		WithMetadata(MetadataSessionState, s.State)
	if len(history) > 0 {
		msg.WithMetadata(agenkit.MetadataHistory, history)
	}

	response, err := a.root.Process(ctx, msg)
	if err != nil {
		a.logger.Error("request failed", "session_id", s.ID, "error", err)
		return nil, err
	}

	routed, _ := response.Metadata[patterns.MetadataAgentPath].([]string)
	a.logger.Info("request answered", "session_id", s.ID, "agent_path", routed)

	if err := a.memory.Store(ctx, s.ID, agenkit.NewMessage(agenkit.RoleUser, text), nil); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}
	reply := agenkit.NewMessage(agenkit.RoleAssistant, response.Content)
	if err := a.memory.Store(ctx, s.ID, reply, map[string]interface{}{memory.MetadataTags: routed}); err != nil {
		return nil, fmt.Errorf("failed to store reply: %w", err)
	}
	return response, nil
}
