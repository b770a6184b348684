package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
)

// TestCallOptions tests the functional options pattern.
func TestCallOptions(t *testing.T) {
	tests := []struct {
		name     string
		opts     []CallOption
		validate func(*testing.T, *CallOptions)
	}{
		{
			name: "WithTemperature",
			opts: []CallOption{WithTemperature(0.7)},
			validate: func(t *testing.T, opts *CallOptions) {
				if opts.Temperature == nil {
					t.Fatal("Temperature should not be nil")
				}
				if *opts.Temperature != 0.7 {
					t.Errorf("Expected temperature 0.7, got %f", *opts.Temperature)
				}
			},
		},
		{
			name: "WithMaxTokens",
			opts: []CallOption{WithMaxTokens(1024)},
			validate: func(t *testing.T, opts *CallOptions) {
				if opts.MaxTokens == nil {
					t.Fatal("MaxTokens should not be nil")
				}
				if *opts.MaxTokens != 1024 {
					t.Errorf("Expected max_tokens 1024, got %d", *opts.MaxTokens)
				}
			},
		},
		{
			name: "WithTopP",
			opts: []CallOption{WithTopP(0.9)},
			validate: func(t *testing.T, opts *CallOptions) {
				if opts.TopP == nil {
					t.Fatal("TopP should not be nil")
				}
				if *opts.TopP != 0.9 {
					t.Errorf("Expected top_p 0.9, got %f", *opts.TopP)
				}
			},
		},
		{
			name: "WithExtra",
			opts: []CallOption{WithExtra("custom", "value")},
			validate: func(t *testing.T, opts *CallOptions) {
				if opts.Extra == nil {
					t.Fatal("Extra should not be nil")
				}
				val, ok := opts.Extra["custom"]
				if !ok {
					t.Fatal("Extra should contain 'custom' key")
				}
				if val != "value" {
					t.Errorf("Expected extra value 'value', got %v", val)
				}
			},
		},
		{
			name: "Multiple options",
			opts: []CallOption{
				WithTemperature(0.5),
				WithMaxTokens(2048),
				WithTopP(0.95),
				WithExtra("stop", []string{"END"}),
			},
			validate: func(t *testing.T, opts *CallOptions) {
				if opts.Temperature == nil || *opts.Temperature != 0.5 {
					t.Error("Temperature not set correctly")
				}
				if opts.MaxTokens == nil || *opts.MaxTokens != 2048 {
					t.Error("MaxTokens not set correctly")
				}
				if opts.TopP == nil || *opts.TopP != 0.95 {
					t.Error("TopP not set correctly")
				}
				if opts.Extra["stop"] == nil {
					t.Error("Extra 'stop' not set")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := BuildCallOptions(tt.opts...)
			tt.validate(t, opts)
		})
	}
}

func TestScriptedLLM(t *testing.T) {
	ctx := context.Background()
	s := NewScriptedLLM("first", "second reply")

	resp, err := s.Complete(ctx, []*agenkit.Message{agenkit.NewMessage(agenkit.RoleUser, "a")})
	if err != nil || resp.Content != "first" {
		t.Fatalf("got %v, %v", resp, err)
	}

	stream, err := s.Stream(ctx, []*agenkit.Message{agenkit.NewMessage(agenkit.RoleUser, "b")})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	var content string
	for chunk := range stream {
		content += chunk.Content
	}
	if content != "second reply" {
		t.Errorf("expected 'second reply', got %q", content)
	}

	if _, err := s.Complete(ctx, nil); !errors.Is(err, ErrScriptExhausted) {
		t.Errorf("expected ErrScriptExhausted, got %v", err)
	}
	if len(s.Calls()) != 3 {
		t.Errorf("expected 3 recorded calls, got %d", len(s.Calls()))
	}
}

func TestAgent_Messages(t *testing.T) {
	s := NewScriptedLLM("Hello there!")
	agent := NewAgent("greeting_agent", s, WithSystemPrompt("default prompt"), WithAgentDescription("Handles greetings"))

	history := []*agenkit.Message{
		agenkit.NewMessage(agenkit.RoleUser, "earlier"),
		agenkit.NewMessage(agenkit.RoleAssistant, "reply"),
	}
	msg := agenkit.NewMessage(agenkit.RoleUser, "hi").
		WithMetadata(agenkit.MetadataHistory, history).
		WithMetadata(agenkit.MetadataSessionID, "s1")

	resp, err := agent.Process(context.Background(), msg)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if resp.MetadataString(agenkit.MetadataSessionID) != "s1" {
		t.Errorf("session id not carried: %v", resp.Metadata)
	}

	sent := s.Calls()[0]
	var got []string
	for _, m := range sent {
		got = append(got, m.Role+":"+m.Content)
	}
	want := []string{"system:default prompt", "user:earlier", "assistant:reply", "user:hi"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}

	override := agenkit.NewMessage(agenkit.RoleUser, "x").WithMetadata(agenkit.MetadataSystemPrompt, "override")
	if m := agent.Messages(override); m[0].Content != "override" {
		t.Errorf("expected metadata system prompt to win, got %q", m[0].Content)
	}
	if agent.Description() != "Handles greetings" {
		t.Errorf("unexpected description %q", agent.Description())
	}
}

func TestAgent_Error(t *testing.T) {
	agent := NewAgent("a", NewScriptedLLM())
	if _, err := agent.Process(context.Background(), agenkit.NewMessage(agenkit.RoleUser, "x")); !errors.Is(err, ErrScriptExhausted) {
		t.Errorf("expected wrapped ErrScriptExhausted, got %v", err)
	}
	if _, err := agent.Process(context.Background(), nil); err == nil {
		t.Error("expected error for nil message")
	}
}

func TestSplitSystem(t *testing.T) {
	system, rest := splitSystem([]*agenkit.Message{
		agenkit.NewMessage(agenkit.RoleSystem, "a"),
		agenkit.NewMessage(agenkit.RoleUser, "q"),
		agenkit.NewMessage(agenkit.RoleSystem, "b"),
	})
	if system != "a\n\nb" || len(rest) != 1 || rest[0].Content != "q" {
		t.Errorf("unexpected split %q %v", system, rest)
	}
}

func TestConvertOpenAIMessages(t *testing.T) {
	got := convertOpenAIMessages([]*agenkit.Message{
		agenkit.NewMessage(agenkit.RoleSystem, "s"),
		agenkit.NewMessage(agenkit.RoleTool, "t"),
		agenkit.NewMessage(agenkit.RoleAgent, "a"),
	})
	roles := []string{got[0].Role, got[1].Role, got[2].Role}
	if diff := cmp.Diff([]string{"system", "user", "assistant"}, roles); diff != "" {
		t.Errorf("roles mismatch (-want +got):\n%s", diff)
	}
}

func TestConvertGeminiMessages(t *testing.T) {
	history, last := convertGeminiMessages([]*agenkit.Message{
		agenkit.NewMessage(agenkit.RoleUser, "q1"),
		agenkit.NewMessage(agenkit.RoleAgent, "a1"),
		agenkit.NewMessage(agenkit.RoleUser, "q2"),
	})
	if len(history) != 2 || history[1].Role != "model" || len(last) != 1 {
		t.Errorf("unexpected conversion %v %v", history, last)
	}
	if h, l := convertGeminiMessages(nil); h != nil || l != nil {
		t.Error("expected nil for empty input")
	}
}

func TestConvertBedrockMessages(t *testing.T) {
	msgs, system := convertBedrockMessages([]*agenkit.Message{
		agenkit.NewMessage(agenkit.RoleSystem, "s"),
		agenkit.NewMessage(agenkit.RoleUser, "q"),
		agenkit.NewMessage(agenkit.RoleAgent, "a"),
	})
	if len(system) != 1 || len(msgs) != 2 {
		t.Fatalf("unexpected conversion %v %v", msgs, system)
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("unexpected roles %v %v", msgs[0].Role, msgs[1].Role)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	if _, err := Open(ctx, ProviderConfig{}); !errors.Is(err, ErrNoProvider) {
		t.Errorf("expected ErrNoProvider, got %v", err)
	}
	if _, err := Open(ctx, ProviderConfig{Provider: ProviderOpenAI}); !errors.Is(err, ErrNoProvider) {
		t.Errorf("expected ErrNoProvider for missing key, got %v", err)
	}
	if _, err := Open(ctx, ProviderConfig{Provider: "watsonx"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := Open(ctx, ProviderConfig{Provider: ProviderAzure, Azure: AzureConfig{Endpoint: "https://x.openai.azure.com"}}); err == nil {
		t.Error("expected error for azure without deployment")
	}

	m, err := Open(ctx, ProviderConfig{Provider: ProviderOpenAI, OpenAIKey: "sk-test"})
	if err != nil || m.Model() != "gpt-4o" {
		t.Errorf("got %v, %v", m, err)
	}

	offline, err := Open(ctx, ProviderConfig{Provider: ProviderScripted})
	if err != nil {
		t.Fatalf("Open scripted failed: %v", err)
	}
	resp, err := offline.Complete(ctx, []*agenkit.Message{agenkit.NewMessage(agenkit.RoleUser, "x")})
	if err != nil || !strings.HasPrefix(resp.Content, "Final Answer:") {
		t.Errorf("unexpected offline reply %v, %v", resp, err)
	}
}

func TestLLMInterface(t *testing.T) {
	var _ LLM = &ScriptedLLM{}
	var _ LLM = &OpenAILLM{}
	var _ LLM = &GeminiLLM{}
	var _ LLM = &BedrockLLM{}
	var _ agenkit.Agent = &Agent{}
	var _ agenkit.Describer = &Agent{}
}
