package agenkit

import (
	"fmt"
	"time"
)

// IntrospectionResult is a snapshot of an agent's internal state.
//
// The assistant uses it to print the agent tree (`catering tree`) and to
// expose sub-agent wiring in the HTTP API.
type IntrospectionResult struct {
	Timestamp     time.Time              `json:"timestamp"`
	AgentName     string                 `json:"agent_name"`
	Capabilities  []string               `json:"capabilities"`
	MemoryState   map[string]interface{} `json:"memory_state,omitempty"`
	InternalState map[string]interface{} `json:"internal_state"`
	Metadata      map[string]interface{} `json:"metadata"`
	// Children holds the introspection of delegated sub-agents, if any.
	Children []*IntrospectionResult `json:"children,omitempty"`
}

// NewIntrospectionResult creates and validates an introspection result.
func NewIntrospectionResult(
	agentName string,
	capabilities []string,
	memoryState map[string]interface{},
	internalState map[string]interface{},
	metadata map[string]interface{},
) (*IntrospectionResult, error) {
	result := &IntrospectionResult{
		Timestamp:     time.Now().UTC(),
		AgentName:     agentName,
		Capabilities:  capabilities,
		MemoryState:   memoryState,
		InternalState: internalState,
		Metadata:      metadata,
	}
	if result.Capabilities == nil {
		result.Capabilities = []string{}
	}
	if result.InternalState == nil {
		result.InternalState = make(map[string]interface{})
	}
	if result.Metadata == nil {
		result.Metadata = make(map[string]interface{})
	}

	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}

// Validate validates the introspection result.
func (r *IntrospectionResult) Validate() error {
	if r.AgentName == "" {
		return fmt.Errorf("agent_name cannot be empty")
	}
	if r.Capabilities == nil {
		return fmt.Errorf("capabilities cannot be nil (use empty slice instead)")
	}
	if r.InternalState == nil {
		return fmt.Errorf("internal_state cannot be nil (use empty map instead)")
	}
	return nil
}

// DefaultIntrospectionResult creates a basic introspection result for an agent
// without memory or custom state.
func DefaultIntrospectionResult(agent Agent) *IntrospectionResult {
	return &IntrospectionResult{
		Timestamp:     time.Now().UTC(),
		AgentName:     agent.Name(),
		Capabilities:  agent.Capabilities(),
		InternalState: make(map[string]interface{}),
		Metadata:      make(map[string]interface{}),
	}
}

// Walk visits r and all of its descendants depth first.
func (r *IntrospectionResult) Walk(fn func(depth int, node *IntrospectionResult)) {
	r.walk(0, fn)
}

func (r *IntrospectionResult) walk(depth int, fn func(int, *IntrospectionResult)) {
	fn(depth, r)
	for _, child := range r.Children {
		child.walk(depth+1, fn)
	}
}
