// Package tools provides the tool registry the catering agents draw their
// tools from, and FuncTool for declaring tools from plain functions.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
)

// Registry manages the tools available to agents.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]agenkit.Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]agenkit.Tool)}
}

// Register adds tools to the registry.
func (r *Registry) Register(tools ...agenkit.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, tool := range tools {
		if tool == nil {
			return fmt.Errorf("tool cannot be nil")
		}
		if tool.Name() == "" {
			return fmt.Errorf("tool name cannot be empty")
		}
		if _, exists := r.tools[tool.Name()]; exists {
			return fmt.Errorf("tool '%s' is already registered", tool.Name())
		}
		r.tools[tool.Name()] = tool
	}
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (agenkit.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns the named tools in the given order. Unknown names are an
// error so that agent wiring fails at startup rather than mid-conversation.
func (r *Registry) Select(names ...string) ([]agenkit.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]agenkit.Tool, 0, len(names))
	for _, name := range names {
		tool, ok := r.tools[name]
		if !ok {
			return nil, fmt.Errorf("tool '%s' not found", name)
		}
		out = append(out, tool)
	}
	return out, nil
}

// Describe returns a formatted description of all registered tools.
func (r *Registry) Describe() string {
	names := r.List()
	if len(names) == 0 {
		return "No tools available."
	}

	var sb strings.Builder
	sb.WriteString("Available tools:\n")
	for _, name := range names {
		tool, _ := r.Get(name)
		fmt.Fprintf(&sb, "- %s: %s\n", name, tool.Description())
	}
	return sb.String()
}

// Call is a request to execute a tool directly.
type Call struct {
	ToolName   string                 `json:"tool_name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// Invoke executes a call. A missing tool or an execution error is reported
// as a failed ToolResult, never as a Go error, so callers can relay it.
func (r *Registry) Invoke(ctx context.Context, call Call) *agenkit.ToolResult {
	tool, ok := r.Get(call.ToolName)
	if !ok {
		return agenkit.NewToolError(fmt.Sprintf("tool '%s' not found", call.ToolName))
	}
	params := call.Parameters
	if params == nil {
		params = map[string]interface{}{}
	}
	result, err := tool.Execute(ctx, params)
	if err != nil {
		return agenkit.NewToolError(err.Error())
	}
	if result == nil {
		return agenkit.NewToolError("tool returned no result")
	}
	return result
}
