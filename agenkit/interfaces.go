// Package agenkit provides the core contracts shared by every agent in the
// catering assistant: messages, agents, tools and tool results.
package agenkit

import (
	"context"
	"fmt"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
	RoleAgent     = "agent"
)

const (
	maxRoleLength       = 20
	maxContentSize      = 1024 * 1024
	maxMetadataKeys     = 100
	maxMetadataKeyLen   = 50
	maxMetadataValueLen = 10 * 1024
)

// Well-known metadata keys shared across packages.
const (
	// MetadataSystemPrompt carries the system instruction an LLM-backed
	// agent should use for this call.
	MetadataSystemPrompt = "system_prompt"
	// MetadataHistory carries earlier conversation turns as []*Message.
	MetadataHistory   = "history"
	MetadataSessionID = "session_id"
	MetadataUserID    = "user_id"
	// MetadataAgentPath lists the agents a message passed through, as
	// []string, outermost first.
	MetadataAgentPath = "agent_path"
)

var allowedRoles = map[string]bool{
	RoleUser:      true,
	RoleAssistant: true,
	RoleSystem:    true,
	RoleTool:      true,
	RoleAgent:     true,
}

// Message represents a message exchanged between the user, agents and tools.
//
// Metadata carries structured state between agents. The approval workflow,
// for example, hands stock-count lines and ERP lines from stage to stage in
// metadata rather than re-parsing the rendered text.
type Message struct {
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewMessage creates a new message with the given role and content.
// It does not validate; call Validate when the message comes from outside.
func NewMessage(role, content string) *Message {
	return &Message{
		Role:      role,
		Content:   content,
		Metadata:  make(map[string]interface{}),
		Timestamp: time.Now().UTC(),
	}
}

// NewValidatedMessage creates a message and validates it.
func NewValidatedMessage(role, content string) (*Message, error) {
	m := NewMessage(role, content)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// WithMetadata sets a metadata key and returns the message for chaining.
func (m *Message) WithMetadata(key string, value interface{}) *Message {
	if m.Metadata == nil {
		m.Metadata = make(map[string]interface{})
	}
	m.Metadata[key] = value
	return m
}

// MetadataString returns a string metadata value, or "" when absent or not a string.
func (m *Message) MetadataString(key string) string {
	if m == nil || m.Metadata == nil {
		return ""
	}
	s, _ := m.Metadata[key].(string)
	return s
}

// AgentPath returns the MetadataAgentPath entry, or nil.
func (m *Message) AgentPath() []string {
	if m == nil || m.Metadata == nil {
		return nil
	}
	path, _ := m.Metadata[MetadataAgentPath].([]string)
	return path
}

// CopyMetadata copies every metadata key from src that is not already set on m.
func (m *Message) CopyMetadata(src *Message) *Message {
	if src == nil {
		return m
	}
	for k, v := range src.Metadata {
		if _, exists := m.Metadata[k]; !exists {
			m.WithMetadata(k, v)
		}
	}
	return m
}

// Validate checks the message against size and role limits.
func (m *Message) Validate() error {
	if m.Role == "" {
		return fmt.Errorf("message role cannot be empty")
	}
	if len(m.Role) > maxRoleLength {
		return fmt.Errorf("message role exceeds maximum length of %d characters (got %d)", maxRoleLength, len(m.Role))
	}
	if !allowedRoles[m.Role] {
		return fmt.Errorf("invalid message role: %s. Must be one of: user, assistant, system, tool, agent", m.Role)
	}

	if len(m.Content) > maxContentSize {
		return fmt.Errorf("message content exceeds maximum size of %d bytes (got %d bytes)", maxContentSize, len(m.Content))
	}

	if len(m.Metadata) > maxMetadataKeys {
		return fmt.Errorf("message metadata exceeds maximum of %d keys (got %d)", maxMetadataKeys, len(m.Metadata))
	}
	for key, value := range m.Metadata {
		if len(key) > maxMetadataKeyLen {
			return fmt.Errorf("metadata key '%s...' exceeds maximum length of %d characters (got %d)",
				key[:20], maxMetadataKeyLen, len(key))
		}
		if size := len(fmt.Sprintf("%v", value)); size > maxMetadataValueLen {
			return fmt.Errorf("metadata value for key '%s' exceeds maximum size of %d bytes (got %d bytes)",
				key, maxMetadataValueLen, size)
		}
	}

	return nil
}

// ToolResult represents the result of a tool execution.
type ToolResult struct {
	Success  bool                   `json:"success"`
	Data     interface{}            `json:"data,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata"`
}

// NewToolResult creates a successful tool result.
func NewToolResult(data interface{}) *ToolResult {
	return &ToolResult{
		Success:  true,
		Data:     data,
		Metadata: make(map[string]interface{}),
	}
}

// NewToolError creates a failed tool result.
func NewToolError(err string) *ToolResult {
	return &ToolResult{
		Success:  false,
		Error:    err,
		Metadata: make(map[string]interface{}),
	}
}

// WithMetadata sets a metadata key and returns the result for chaining.
func (t *ToolResult) WithMetadata(key string, value interface{}) *ToolResult {
	t.Metadata[key] = value
	return t
}

// Agent is the core interface that all agents implement.
type Agent interface {
	// Name returns the unique identifier for this agent.
	Name() string

	// Process handles a message and returns a response.
	Process(ctx context.Context, message *Message) (*Message, error)

	// Capabilities returns capability identifiers this agent supports.
	Capabilities() []string

	// Introspect returns a snapshot of the agent's internal state.
	Introspect() *IntrospectionResult
}

// Describer is implemented by agents that carry a human readable description,
// used by routers when asking an LLM to pick a sub-agent.
type Describer interface {
	Description() string
}

// Tool represents an executable capability that agents can use.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool does.
	Description() string

	// Execute runs the tool with the given parameters and returns a result.
	Execute(ctx context.Context, params map[string]interface{}) (*ToolResult, error)
}

// Parameter describes a single tool argument.
type Parameter struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
	Required    bool   `json:"required" yaml:"required"`
}

// ParameterizedTool is a Tool that declares its arguments, so that prompts
// can tell the model exactly what to send.
type ParameterizedTool interface {
	Tool
	Parameters() []Parameter
}
