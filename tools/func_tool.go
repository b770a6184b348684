package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
)

// Func is the body of a FuncTool.
type Func func(ctx context.Context, args Args) (interface{}, error)

// FuncTool is a tool declared from a function and a parameter list.
//
// Missing required parameters are rejected before fn runs. fn's return value
// becomes the result data; an error becomes a failed result.
type FuncTool struct {
	name        string
	description string
	params      []agenkit.Parameter
	fn          Func
}

// NewFuncTool declares a tool.
func NewFuncTool(name, description string, params []agenkit.Parameter, fn Func) *FuncTool {
	return &FuncTool{name: name, description: description, params: params, fn: fn}
}

// Name returns the tool name.
func (t *FuncTool) Name() string { return t.name }

// Description returns the tool description.
func (t *FuncTool) Description() string { return t.description }

// Parameters returns the declared parameters.
func (t *FuncTool) Parameters() []agenkit.Parameter { return t.params }

// Execute validates params and runs the function.
func (t *FuncTool) Execute(ctx context.Context, params map[string]interface{}) (*agenkit.ToolResult, error) {
	args := Args(params)
	for _, p := range t.params {
		if p.Required && !args.Has(p.Name) {
			return agenkit.NewToolError(fmt.Sprintf("missing required parameter '%s'", p.Name)), nil
		}
	}

	data, err := t.fn(ctx, args)
	if err != nil {
		return agenkit.NewToolError(err.Error()), nil
	}
	return agenkit.NewToolResult(data).WithMetadata("tool", t.name), nil
}

// Args wraps decoded tool arguments. Models are loose about types, so the
// accessors coerce where the meaning is unambiguous.
type Args map[string]interface{}

// Has reports whether key is present and non-empty.
func (a Args) Has(key string) bool {
	v, ok := a[key]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// String returns a string argument. Numbers are formatted.
func (a Args) String(key string) string {
	switch v := a[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Int returns an integer argument. JSON numbers and numeric strings are
// accepted; anything else is 0.
func (a Args) Int(key string) int {
	switch v := a[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Strings returns a list argument. A single string becomes a one-element
// list.
func (a Args) Strings(key string) []string {
	switch v := a[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}
