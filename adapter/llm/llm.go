// Package llm provides the model interface the catering agents talk to and
// adapters for the hosted providers: OpenAI, Azure OpenAI, Gemini and
// Bedrock.
//
// The interface is intentionally small. Agents never see provider types;
// Unwrap is the escape hatch when a provider feature is needed.
package llm

import (
	"context"
	"errors"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
)

// ErrNoProvider is returned when no model provider is configured.
var ErrNoProvider = errors.New("llm: no model provider configured")

// LLM is the minimal interface for agent-LLM interaction.
//
// Example:
//
//	model := NewOpenAILLM("sk-...", "gpt-4o")
//	messages := []*agenkit.Message{
//	    agenkit.NewMessage("system", "You are a catering assistant."),
//	    agenkit.NewMessage("user", "Show flight EK0202"),
//	}
//	response, err := model.Complete(ctx, messages, WithTemperature(0.2))
type LLM interface {
	// Complete generates a single completion from the LLM.
	//
	// The response has role "agent"; provider data such as token usage is
	// placed in its metadata.
	Complete(ctx context.Context, messages []*agenkit.Message, opts ...CallOption) (*agenkit.Message, error)

	// Stream generates completion chunks from the LLM. The channel is closed
	// when the stream ends; a chunk with an "error" metadata key reports a
	// failure mid-stream.
	Stream(ctx context.Context, messages []*agenkit.Message, opts ...CallOption) (<-chan *agenkit.Message, error)

	// Model returns the model identifier for this LLM instance.
	Model() string

	// Unwrap returns the underlying provider client.
	Unwrap() interface{}
}

// CallOptions holds provider-specific options for LLM calls.
type CallOptions struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64

	// Provider-specific options
	Extra map[string]interface{}
}

// CallOption is a functional option for configuring LLM calls.
type CallOption func(*CallOptions)

// WithTemperature sets the sampling temperature (typically 0.0-2.0).
func WithTemperature(temperature float64) CallOption {
	return func(opts *CallOptions) {
		opts.Temperature = &temperature
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(maxTokens int) CallOption {
	return func(opts *CallOptions) {
		opts.MaxTokens = &maxTokens
	}
}

// WithTopP sets the nucleus sampling parameter.
func WithTopP(topP float64) CallOption {
	return func(opts *CallOptions) {
		opts.TopP = &topP
	}
}

// WithExtra adds a provider-specific option.
func WithExtra(key string, value interface{}) CallOption {
	return func(opts *CallOptions) {
		if opts.Extra == nil {
			opts.Extra = make(map[string]interface{})
		}
		opts.Extra[key] = value
	}
}

// BuildCallOptions creates CallOptions from functional options.
func BuildCallOptions(opts ...CallOption) *CallOptions {
	options := &CallOptions{
		Extra: make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// splitSystem separates system messages from the conversation. Providers
// that take the system instruction out of band use it.
func splitSystem(messages []*agenkit.Message) (string, []*agenkit.Message) {
	var system string
	rest := make([]*agenkit.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == agenkit.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
