package agenkit

import (
	"context"
	"strings"
	"testing"
)

type stubAgent struct {
	name string
}

func (a *stubAgent) Name() string { return a.name }

func (a *stubAgent) Process(ctx context.Context, message *Message) (*Message, error) {
	return NewMessage(RoleAssistant, "Processed: "+message.Content), nil
}

func (a *stubAgent) Capabilities() []string { return []string{"stub"} }

func (a *stubAgent) Introspect() *IntrospectionResult { return DefaultIntrospectionResult(a) }

func TestIntrospectionResultCreation(t *testing.T) {
	result, err := NewIntrospectionResult("flight_info_agent", nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewIntrospectionResult failed: %v", err)
	}
	if result.AgentName != "flight_info_agent" {
		t.Errorf("expected agent name 'flight_info_agent', got '%s'", result.AgentName)
	}
	if result.Capabilities == nil || result.InternalState == nil || result.Metadata == nil {
		t.Error("expected nil collections to be initialized")
	}
	if result.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestIntrospectionResultValidation(t *testing.T) {
	if _, err := NewIntrospectionResult("", []string{}, nil, nil, nil); err == nil {
		t.Fatal("expected error for empty agent name")
	}

	r := &IntrospectionResult{AgentName: "x", Capabilities: []string{}}
	if err := r.Validate(); err == nil || !strings.Contains(err.Error(), "internal_state") {
		t.Errorf("expected internal_state error, got %v", err)
	}
}

func TestDefaultIntrospectionResult(t *testing.T) {
	result := DefaultIntrospectionResult(&stubAgent{name: "greeting_agent"})
	if result.AgentName != "greeting_agent" {
		t.Errorf("expected 'greeting_agent', got '%s'", result.AgentName)
	}
	if len(result.Capabilities) != 1 || result.Capabilities[0] != "stub" {
		t.Errorf("unexpected capabilities %v", result.Capabilities)
	}
}

func TestIntrospectionWalk(t *testing.T) {
	root := DefaultIntrospectionResult(&stubAgent{name: "root"})
	main := DefaultIntrospectionResult(&stubAgent{name: "main"})
	main.Children = []*IntrospectionResult{DefaultIntrospectionResult(&stubAgent{name: "leaf"})}
	root.Children = []*IntrospectionResult{DefaultIntrospectionResult(&stubAgent{name: "greeting"}), main}

	var visited []string
	root.Walk(func(depth int, node *IntrospectionResult) {
		visited = append(visited, strings.Repeat("-", depth)+node.AgentName)
	})

	want := []string{"root", "-greeting", "-main", "--leaf"}
	if strings.Join(visited, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, visited)
	}
}

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     *Message
		wantErr string
	}{
		{"valid", NewMessage(RoleUser, "approve transaction TXN001"), ""},
		{"empty role", NewMessage("", "hi"), "cannot be empty"},
		{"unknown role", NewMessage("robot", "hi"), "invalid message role"},
		{"oversized", NewMessage(RoleUser, strings.Repeat("x", maxContentSize+1)), "exceeds maximum size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestMessageMetadataHelpers(t *testing.T) {
	src := NewMessage(RoleUser, "x").WithMetadata("transaction_id", "TXN001").WithMetadata("session_id", "s1")
	dst := NewMessage(RoleAgent, "y").WithMetadata("session_id", "s2")
	dst.CopyMetadata(src)

	if got := dst.MetadataString("transaction_id"); got != "TXN001" {
		t.Errorf("expected copied transaction_id, got %q", got)
	}
	if got := dst.MetadataString("session_id"); got != "s2" {
		t.Errorf("expected existing key to win, got %q", got)
	}
	if got := dst.MetadataString("missing"); got != "" {
		t.Errorf("expected empty string for missing key, got %q", got)
	}

	var nilMsg *Message
	if nilMsg.MetadataString("x") != "" {
		t.Error("expected nil message to return empty string")
	}
	if nilMsg.AgentPath() != nil || dst.AgentPath() != nil {
		t.Error("expected no agent path")
	}
	dst.WithMetadata(MetadataAgentPath, []string{"catering_agent_v2", "greeting_agent"})
	if got := dst.AgentPath(); len(got) != 2 || got[1] != "greeting_agent" {
		t.Errorf("unexpected agent path %v", got)
	}
}
