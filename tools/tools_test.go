package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
)

func echoTool(name string) *FuncTool {
	return NewFuncTool(name, "echoes "+name,
		[]agenkit.Parameter{{Name: "text", Type: "string", Required: true}},
		func(ctx context.Context, args Args) (interface{}, error) {
			return args.String("text"), nil
		})
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool("b"), echoTool("a")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(echoTool("a")); err == nil || !strings.Contains(err.Error(), "already registered") {
		t.Errorf("expected duplicate error, got %v", err)
	}
	if err := r.Register(nil); err == nil {
		t.Error("expected error for nil tool")
	}
	if diff := cmp.Diff([]string{"a", "b"}, r.List()); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(r.Describe(), "- a: echoes a") {
		t.Errorf("unexpected description %q", r.Describe())
	}
	if NewRegistry().Describe() != "No tools available." {
		t.Error("unexpected empty description")
	}
}

func TestRegistry_Select(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(echoTool("a"), echoTool("b"))

	got, err := r.Select("b", "a")
	if err != nil || got[0].Name() != "b" || got[1].Name() != "a" {
		t.Errorf("unexpected selection %v, %v", got, err)
	}
	if _, err := r.Select("c"); err == nil {
		t.Error("expected error for unknown tool")
	}
}

func TestRegistry_Invoke(t *testing.T) {
	r := NewRegistry()
	failing := NewFuncTool("fail", "fails", nil, func(ctx context.Context, args Args) (interface{}, error) {
		return nil, errors.New("backend down")
	})
	_ = r.Register(echoTool("echo"), failing)
	ctx := context.Background()

	tests := []struct {
		name    string
		call    Call
		success bool
		want    string
	}{
		{"ok", Call{ToolName: "echo", Parameters: map[string]interface{}{"text": "hi"}}, true, "hi"},
		{"missing param", Call{ToolName: "echo"}, false, "missing required parameter 'text'"},
		{"unknown", Call{ToolName: "nope"}, false, "tool 'nope' not found"},
		{"error", Call{ToolName: "fail"}, false, "backend down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Invoke(ctx, tt.call)
			if res.Success != tt.success {
				t.Fatalf("success = %v, want %v (%s)", res.Success, tt.success, res.Error)
			}
			if tt.success && res.Data != tt.want {
				t.Errorf("data = %v, want %q", res.Data, tt.want)
			}
			if !tt.success && res.Error != tt.want {
				t.Errorf("error = %q, want %q", res.Error, tt.want)
			}
		})
	}
}

func TestArgs(t *testing.T) {
	a := Args{
		"s":     " TXN001 ",
		"f":     float64(2),
		"n":     "7",
		"bad":   "x",
		"list":  []interface{}{"ITEM001", "", "ITEM002"},
		"one":   "ITEM003",
		"empty": "  ",
	}

	if a.String("s") != "TXN001" || a.String("f") != "2" || a.String("missing") != "" {
		t.Error("String coercion failed")
	}
	if a.Int("f") != 2 || a.Int("n") != 7 || a.Int("bad") != 0 {
		t.Error("Int coercion failed")
	}
	if diff := cmp.Diff([]string{"ITEM001", "ITEM002"}, a.Strings("list")); diff != "" {
		t.Errorf("Strings mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"ITEM003"}, a.Strings("one")); diff != "" {
		t.Errorf("Strings mismatch (-want +got):\n%s", diff)
	}
	if a.Has("empty") || a.Has("missing") || !a.Has("f") {
		t.Error("Has failed")
	}
}
