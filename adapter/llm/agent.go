package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
)

// Agent adapts an LLM to agenkit.Agent.
//
// Each call sends, in order, the system prompt (from the message's
// system_prompt metadata, else the agent's own), any history carried in the
// message's history metadata, and the message itself.
type Agent struct {
	name        string
	description string
	system      string
	model       LLM
	callOpts    []CallOption
	logger      *slog.Logger
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithSystemPrompt sets the default system prompt.
func WithSystemPrompt(prompt string) AgentOption {
	return func(a *Agent) { a.system = prompt }
}

// WithAgentDescription sets the description used by routers.
func WithAgentDescription(desc string) AgentOption {
	return func(a *Agent) { a.description = desc }
}

// WithCallOptions sets options passed on every completion.
func WithCallOptions(opts ...CallOption) AgentOption {
	return func(a *Agent) { a.callOpts = append(a.callOpts, opts...) }
}

// WithAgentLogger sets the logger.
func WithAgentLogger(logger *slog.Logger) AgentOption {
	return func(a *Agent) { a.logger = logger }
}

// NewAgent wraps model as an agent called name.
func NewAgent(name string, model LLM, opts ...AgentOption) *Agent {
	a := &Agent{name: name, model: model, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// Description implements agenkit.Describer.
func (a *Agent) Description() string { return a.description }

// Capabilities returns the agent's capabilities.
func (a *Agent) Capabilities() []string { return []string{"llm", "completion"} }

// Introspect reports the backing model.
func (a *Agent) Introspect() *agenkit.IntrospectionResult {
	result := agenkit.DefaultIntrospectionResult(a)
	result.InternalState["model"] = a.model.Model()
	return result
}

// Messages builds the conversation sent to the model for msg.
func (a *Agent) Messages(msg *agenkit.Message) []*agenkit.Message {
	system := msg.MetadataString(agenkit.MetadataSystemPrompt)
	if system == "" {
		system = a.system
	}

	var out []*agenkit.Message
	if system != "" {
		out = append(out, agenkit.NewMessage(agenkit.RoleSystem, system))
	}
	if history, ok := msg.Metadata[agenkit.MetadataHistory].([]*agenkit.Message); ok {
		for _, h := range history {
			if h != nil && h.Role != agenkit.RoleSystem {
				out = append(out, h)
			}
		}
	}
	return append(out, agenkit.NewMessage(agenkit.RoleUser, msg.Content))
}

// Process sends msg to the model.
func (a *Agent) Process(ctx context.Context, msg *agenkit.Message) (*agenkit.Message, error) {
	if msg == nil {
		return nil, fmt.Errorf("message cannot be nil")
	}

	response, err := a.model.Complete(ctx, a.Messages(msg), a.callOpts...)
	if err != nil {
		a.logger.Warn("completion failed", "agent", a.name, "model", a.model.Model(), "error", err)
		return nil, fmt.Errorf("%s: %w", a.name, err)
	}
	if sid := msg.MetadataString(agenkit.MetadataSessionID); sid != "" {
		response.WithMetadata(agenkit.MetadataSessionID, sid)
	}
	return response, nil
}
