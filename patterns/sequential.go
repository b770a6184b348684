// Package patterns provides the agent composition patterns the catering
// assistant is assembled from: sequential pipelines, routers and the ReAct
// tool loop.
//
// Sequential pattern enables pipeline-style agent composition where each agent
// processes the output of the previous agent.
//
// Key concepts:
//   - Linear processing pipeline
//   - Output of agent N becomes input of agent N+1
//   - Metadata set by earlier stages is carried forward
//   - Early termination on errors or on a halt signal
package patterns

import (
	"context"
	"fmt"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
)

// Metadata keys written by the pipeline.
const (
	// MetadataHalt, when set to true on a stage result, ends the pipeline
	// with that result.
	MetadataHalt = "pipeline_halt"

	MetadataStages = "pipeline_stages"
	MetadataLength = "pipeline_length"
)

// SequentialAgent executes a pipeline of agents in order.
//
// Each agent receives the output of the previous agent as input. Metadata
// keys from the previous message are copied onto each result unless the
// stage set them itself, so structured state flows through the pipeline.
//
// The pipeline stops immediately if any agent returns an error, and stops
// cleanly when a stage sets MetadataHalt.
type SequentialAgent struct {
	name        string
	description string
	agents      []agenkit.Agent
}

// NewSequentialAgent creates a new sequential pipeline agent.
//
// The agents will be executed in the order provided. An empty name defaults
// to "SequentialAgent".
func NewSequentialAgent(name string, agents []agenkit.Agent) (*SequentialAgent, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("at least one agent is required")
	}
	if name == "" {
		name = "SequentialAgent"
	}

	return &SequentialAgent{
		name:   name,
		agents: agents,
	}, nil
}

// WithDescription sets the description shown to routers.
func (s *SequentialAgent) WithDescription(description string) *SequentialAgent {
	s.description = description
	return s
}

// Name returns the agent's identifier.
func (s *SequentialAgent) Name() string {
	return s.name
}

// Description implements agenkit.Describer.
func (s *SequentialAgent) Description() string {
	return s.description
}

// Capabilities returns the combined capabilities of all agents in the pipeline.
func (s *SequentialAgent) Capabilities() []string {
	seen := make(map[string]bool)
	var capabilities []string
	for _, agent := range s.agents {
		for _, c := range agent.Capabilities() {
			if !seen[c] {
				seen[c] = true
				capabilities = append(capabilities, c)
			}
		}
	}
	return append(capabilities, "sequential", "pipeline")
}

// Introspect returns the pipeline and its stages.
func (s *SequentialAgent) Introspect() *agenkit.IntrospectionResult {
	result := agenkit.DefaultIntrospectionResult(s)
	result.InternalState["stages"] = len(s.agents)
	for _, agent := range s.agents {
		result.Children = append(result.Children, agent.Introspect())
	}
	return result
}

// Process executes the agent pipeline sequentially.
//
// A record of every executed stage is stored in the final message under
// MetadataStages.
func (s *SequentialAgent) Process(ctx context.Context, message *agenkit.Message) (*agenkit.Message, error) {
	if message == nil {
		return nil, fmt.Errorf("message cannot be nil")
	}

	stages := make([]map[string]interface{}, 0, len(s.agents))

	current := message
	for i, agent := range s.agents {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("pipeline cancelled at stage %d: %w", i, ctx.Err())
		default:
		}

		result, err := agent.Process(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("agent %d (%s) failed: %w", i, agent.Name(), err)
		}
		if result == nil {
			return nil, fmt.Errorf("agent %d (%s) returned no message", i, agent.Name())
		}
		halted, _ := result.Metadata[MetadataHalt].(bool)
		delete(result.Metadata, MetadataHalt)
		result.CopyMetadata(current)

		stages = append(stages, map[string]interface{}{
			"agent":  agent.Name(),
			"stage":  i,
			"halted": halted,
		})

		current = result
		if halted {
			break
		}
	}

	current.WithMetadata(MetadataStages, stages)
	current.WithMetadata(MetadataLength, len(s.agents))

	return current, nil
}
