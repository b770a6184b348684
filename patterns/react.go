package patterns

// ReAct combines reasoning with tool use. The model alternates between a
// Thought, an Action naming a tool with an Action Input, and the Observation
// the tool produced, until it gives a Final Answer.

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
)

// ReActStep represents a single step in the ReAct reasoning-acting loop.
type ReActStep struct {
	Thought     string `json:"thought,omitempty"`
	Action      string `json:"action,omitempty"`
	ActionInput string `json:"action_input,omitempty"`
	Observation string `json:"observation,omitempty"`
	IsFinal     bool   `json:"is_final,omitempty"`
}

// ReActStopReason indicates why the ReAct loop terminated.
type ReActStopReason string

const (
	StopReasonFinalAnswer   ReActStopReason = "final_answer"
	StopReasonMaxSteps      ReActStopReason = "max_steps"
	StopReasonInvalidAction ReActStopReason = "invalid_action"
	StopReasonToolError     ReActStopReason = "tool_error"
)

// Metadata keys set on ReAct results.
const (
	MetadataStopReason = "stop_reason"
	MetadataSteps      = "steps"
	MetadataReasoning  = "reasoning"
	MetadataToolCalls  = "tool_calls"
)

// ReActConfig configures a ReActAgent.
type ReActConfig struct {
	Name        string
	Description string
	// Agent to use for reasoning, normally an LLM-backed agent
	Agent agenkit.Agent
	// Tools available to the agent
	Tools []agenkit.Tool
	// Instruction is prepended to the tool prompt
	Instruction string
	// InstructionFunc, when set, renders the instruction for each message,
	// e.g. from session state carried in metadata. It overrides Instruction.
	InstructionFunc func(*agenkit.Message) string
	// MaxSteps is the maximum number of reasoning-acting steps (default: 10)
	MaxSteps int
	// Verbose includes step-by-step reasoning in final output
	Verbose bool
	Logger  *slog.Logger
}

// ReActAgent combines reasoning with tool use.
//
// Expected model response format:
//
//	Thought: [reasoning about what to do]
//	Action: [tool name]
//	Action Input: {"param": "value"}
//
// Or for final answer:
//
//	Thought: [reasoning about conclusion]
//	Final Answer: [the final answer, may span lines]
//
// A reply without any of these markers is taken as the final answer.
type ReActAgent struct {
	name        string
	description string
	agent       agenkit.Agent
	tools       map[string]agenkit.Tool
	toolOrder   []string
	toolList    []agenkit.Tool
	instruction func(*agenkit.Message) string
	maxSteps    int
	verbose     bool
	prompt      string
	logger      *slog.Logger
}

// NewReActAgent creates a new ReAct agent.
func NewReActAgent(config *ReActConfig) (*ReActAgent, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if config.Agent == nil {
		return nil, fmt.Errorf("agent is required")
	}
	if len(config.Tools) == 0 {
		return nil, fmt.Errorf("at least one tool is required")
	}

	tools := make(map[string]agenkit.Tool, len(config.Tools))
	order := make([]string, 0, len(config.Tools))
	for _, tool := range config.Tools {
		tools[tool.Name()] = tool
		order = append(order, tool.Name())
	}

	maxSteps := config.MaxSteps
	if maxSteps == 0 {
		maxSteps = 10
	}
	name := config.Name
	if name == "" {
		name = "ReActAgent"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ReActAgent{
		name:        name,
		description: config.Description,
		agent:       config.Agent,
		tools:       tools,
		toolOrder:   order,
		toolList:    config.Tools,
		instruction: config.InstructionFunc,
		maxSteps:    maxSteps,
		verbose:     config.Verbose,
		prompt:      buildReActPrompt(config.Instruction, config.Tools),
		logger:      logger,
	}, nil
}

func buildReActPrompt(instruction string, tools []agenkit.Tool) string {
	var b strings.Builder
	if instruction != "" {
		b.WriteString(strings.TrimSpace(instruction))
		b.WriteString("\n\n")
	}

	b.WriteString("Available tools:\n")
	for _, tool := range tools {
		fmt.Fprintf(&b, "- %s: %s\n", tool.Name(), tool.Description())
		if pt, ok := tool.(agenkit.ParameterizedTool); ok {
			for _, p := range pt.Parameters() {
				req := "optional"
				if p.Required {
					req = "required"
				}
				fmt.Fprintf(&b, "    %s (%s, %s): %s\n", p.Name, p.Type, req, p.Description)
			}
		}
	}

	b.WriteString(`
Use the following format:

Thought: Think about what to do next
Action: [tool name]
Action Input: [a JSON object with the tool arguments]
Observation: [result will be provided]

... (repeat Thought/Action/Observation as needed)

Thought: I now know the final answer
Final Answer: [your final answer here]`)

	return b.String()
}

// Name returns the agent name.
func (r *ReActAgent) Name() string {
	return r.name
}

// Description implements agenkit.Describer.
func (r *ReActAgent) Description() string {
	return r.description
}

// Capabilities returns the agent's capabilities.
func (r *ReActAgent) Capabilities() []string {
	return []string{"reasoning", "tool-use", "react"}
}

// Introspect returns the agent with its tool list.
func (r *ReActAgent) Introspect() *agenkit.IntrospectionResult {
	result := agenkit.DefaultIntrospectionResult(r)
	result.InternalState["tools"] = r.toolOrder
	result.InternalState["max_steps"] = r.maxSteps
	return result
}

// Process executes the ReAct reasoning-acting loop.
func (r *ReActAgent) Process(ctx context.Context, message *agenkit.Message) (*agenkit.Message, error) {
	if message == nil {
		return nil, fmt.Errorf("message cannot be nil")
	}

	var steps []ReActStep
	var toolCalls []string
	transcript := []string{"Question: " + message.Content}
	prompt := r.prompt
	if r.instruction != nil {
		prompt = buildReActPrompt(r.instruction(message), r.toolList)
	}

	for step := 0; step < r.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("react loop cancelled: %w", err)
		}

		input := agenkit.NewMessage(agenkit.RoleUser, strings.Join(transcript, "\n"))
		input.WithMetadata(agenkit.MetadataSystemPrompt, prompt)
		if h, ok := message.Metadata[agenkit.MetadataHistory]; ok {
			input.WithMetadata(agenkit.MetadataHistory, h)
		}

		response, err := r.agent.Process(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("agent process failed: %w", err)
		}

		parsed, marked := ParseReActResponse(response.Content)
		if !marked && strings.TrimSpace(response.Content) != "" {
			parsed = ReActStep{Observation: strings.TrimSpace(response.Content), IsFinal: true}
		}

		if parsed.IsFinal {
			steps = append(steps, parsed)
			return r.finish(message, parsed, steps, toolCalls, StopReasonFinalAnswer), nil
		}
		if parsed.Action == "" {
			steps = append(steps, parsed)
			return r.finish(message, parsed, steps, toolCalls, StopReasonInvalidAction), nil
		}

		tool, ok := r.tools[parsed.Action]
		if !ok {
			names := append([]string(nil), r.toolOrder...)
			sort.Strings(names)
			parsed.Observation = fmt.Sprintf("Error: Tool '%s' not found. Available tools: %s",
				parsed.Action, strings.Join(names, ", "))
			steps = append(steps, parsed)
			transcript = append(transcript, formatStep(parsed))
			continue
		}

		r.logger.Debug("executing tool", "agent", r.name, "tool", parsed.Action)
		toolCalls = append(toolCalls, parsed.Action)
		toolResult, err := tool.Execute(ctx, ParseActionInput(parsed.ActionInput))
		if err != nil {
			parsed.Observation = fmt.Sprintf("Error: %v", err)
			steps = append(steps, parsed)
			r.logger.Warn("tool failed", "agent", r.name, "tool", parsed.Action, "error", err)
			return r.finish(message, parsed, steps, toolCalls, StopReasonToolError), nil
		}

		parsed.Observation = FormatToolResult(toolResult)
		steps = append(steps, parsed)
		transcript = append(transcript, formatStep(parsed))
	}

	last := ReActStep{Thought: "Reached maximum steps without finding answer"}
	if len(steps) > 0 {
		last = steps[len(steps)-1]
	}
	return r.finish(message, last, steps, toolCalls, StopReasonMaxSteps), nil
}

// ParseActionInput decodes a JSON object action input. Anything else is
// passed to the tool as {"input": raw}.
func ParseActionInput(raw string) map[string]interface{} {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.Trim(raw, "`\n ")

	params := map[string]interface{}{}
	if raw == "" {
		return params
	}
	if err := json.Unmarshal([]byte(raw), &params); err != nil || params == nil {
		return map[string]interface{}{"input": raw}
	}
	return params
}

// FormatToolResult renders a tool result as an observation. Structured data
// is rendered as JSON.
func FormatToolResult(result *agenkit.ToolResult) string {
	if result == nil {
		return "Error: tool returned no result"
	}
	if !result.Success {
		if result.Error == "" {
			return "Error: Tool execution failed"
		}
		return "Error: " + result.Error
	}
	switch v := result.Data.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

var reactMarkers = []string{"Thought:", "Action Input:", "Action:", "Observation:", "Final Answer:"}

// ParseReActResponse parses a model reply into a step. The second result
// reports whether any ReAct marker was found. Values may span lines up to
// the next marker; a Final Answer runs to the end of the reply.
func ParseReActResponse(response string) (ReActStep, bool) {
	var step ReActStep
	var field *string
	var buf []string
	marked := false

	flush := func() {
		if field != nil {
			*field = strings.TrimSpace(strings.Join(buf, "\n"))
		}
		buf = nil
	}

	for _, line := range strings.Split(response, "\n") {
		trimmed := strings.TrimSpace(line)
		marker := ""
		for _, m := range reactMarkers {
			if strings.HasPrefix(trimmed, m) {
				marker = m
				break
			}
		}
		if step.IsFinal || marker == "" {
			buf = append(buf, line)
			continue
		}

		flush()
		marked = true
		rest := strings.TrimPrefix(trimmed, marker)
		switch marker {
		case "Thought:":
			field = &step.Thought
		case "Action:":
			field = &step.Action
		case "Action Input:":
			field = &step.ActionInput
		case "Observation:":
			// The model must not invent observations; stop reading here.
			field = nil
		case "Final Answer:":
			field = &step.Observation
			step.IsFinal = true
		}
		buf = append(buf, rest)
		if marker == "Observation:" {
			break
		}
	}
	flush()

	if step.IsFinal && step.Thought == "" {
		step.Thought = "Reached final answer"
	}
	return step, marked
}

func formatStep(step ReActStep) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Thought: %s", step.Thought)
	if step.Action != "" {
		fmt.Fprintf(&b, "\nAction: %s", step.Action)
		fmt.Fprintf(&b, "\nAction Input: %s", step.ActionInput)
	}
	if step.Observation != "" {
		fmt.Fprintf(&b, "\nObservation: %s", step.Observation)
	}
	return b.String()
}

func (r *ReActAgent) finish(in *agenkit.Message, step ReActStep, steps []ReActStep, toolCalls []string, reason ReActStopReason) *agenkit.Message {
	var content strings.Builder

	if r.verbose {
		for i, s := range steps {
			if i > 0 {
				content.WriteString("\n\n")
			}
			content.WriteString(formatStep(s))
		}
		content.WriteString("\n\n---\n\n")
	}

	if reason == StopReasonFinalAnswer {
		answer := step.Observation
		if answer == "" {
			answer = "No final answer provided"
		}
		content.WriteString(answer)
	} else {
		fmt.Fprintf(&content, "Unable to complete task (%s)", reason)
		if step.Thought != "" {
			fmt.Fprintf(&content, "\nLast thought: %s", step.Thought)
		}
	}

	out := agenkit.NewMessage(agenkit.RoleAssistant, content.String())
	out.WithMetadata(MetadataStopReason, string(reason))
	out.WithMetadata(MetadataSteps, len(steps))
	out.WithMetadata(MetadataReasoning, steps)
	out.WithMetadata(MetadataToolCalls, toolCalls)
	out.WithMetadata(MetadataAgentPath, []string{r.name})
	if sid := in.MetadataString(agenkit.MetadataSessionID); sid != "" {
		out.WithMetadata(agenkit.MetadataSessionID, sid)
	}
	return out
}
