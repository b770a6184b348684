package middleware

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
)

type stubAgent struct {
	name    string
	calls   atomic.Int32
	process func(ctx context.Context, n int32) (*agenkit.Message, error)
}

func (s *stubAgent) Name() string           { return s.name }
func (s *stubAgent) Description() string    { return "stub " + s.name }
func (s *stubAgent) Capabilities() []string { return []string{"stub"} }
func (s *stubAgent) Introspect() *agenkit.IntrospectionResult {
	return agenkit.DefaultIntrospectionResult(s)
}
func (s *stubAgent) Process(ctx context.Context, msg *agenkit.Message) (*agenkit.Message, error) {
	return s.process(ctx, s.calls.Add(1))
}

func failTimes(n int32) *stubAgent {
	return &stubAgent{name: "llm", process: func(ctx context.Context, call int32) (*agenkit.Message, error) {
		if call <= n {
			return nil, errors.New("503 from provider")
		}
		return agenkit.NewMessage(agenkit.RoleAgent, "ok"), nil
	}}
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestRetryDecorator(t *testing.T) {
	tests := []struct {
		name      string
		failures  int32
		wantErr   string
		wantCalls int32
	}{
		{"first attempt", 0, "", 1},
		{"recovers", 2, "", 3},
		{"exhausted", 5, "max retry attempts (3) exceeded", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := failTimes(tt.failures)
			resp, err := NewRetryDecorator(agent, fastRetry()).Process(context.Background(), agenkit.NewMessage(agenkit.RoleUser, "x"))
			if tt.wantErr == "" {
				if err != nil || resp.Content != "ok" {
					t.Fatalf("got %v, %v", resp, err)
				}
			} else if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected %q, got %v", tt.wantErr, err)
			}
			if agent.calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", agent.calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestRetryDecorator_NonRetryable(t *testing.T) {
	agent := &stubAgent{name: "llm", process: func(ctx context.Context, n int32) (*agenkit.Message, error) {
		return nil, context.DeadlineExceeded
	}}
	_, err := NewRetryDecorator(agent, fastRetry()).Process(context.Background(), agenkit.NewMessage(agenkit.RoleUser, "x"))
	if !errors.Is(err, context.DeadlineExceeded) || !strings.Contains(err.Error(), "non-retryable") {
		t.Errorf("unexpected error %v", err)
	}
	if agent.calls.Load() != 1 {
		t.Errorf("expected a single call, got %d", agent.calls.Load())
	}
}

func TestRetryDecorator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	agent := &stubAgent{name: "llm", process: func(context.Context, int32) (*agenkit.Message, error) {
		cancel()
		return nil, errors.New("boom")
	}}
	cfg := fastRetry()
	cfg.InitialBackoff = time.Hour
	_, err := NewRetryDecorator(agent, cfg).Process(ctx, agenkit.NewMessage(agenkit.RoleUser, "x"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRetryDecorator_Passthrough(t *testing.T) {
	d := NewRetryDecorator(failTimes(0), RetryConfig{})
	if d.Name() != "llm" || d.Description() != "stub llm" {
		t.Errorf("unexpected passthrough %q %q", d.Name(), d.Description())
	}
	if d.Introspect().InternalState["retry_max_attempts"] != 3 {
		t.Error("expected default attempts in introspection")
	}
}

func TestTimeoutDecorator(t *testing.T) {
	slow := &stubAgent{name: "slow", process: func(ctx context.Context, n int32) (*agenkit.Message, error) {
		time.Sleep(200 * time.Millisecond)
		return agenkit.NewMessage(agenkit.RoleAgent, "late"), nil
	}}
	d := NewTimeoutDecorator(slow, TimeoutConfig{Timeout: 20 * time.Millisecond})

	_, err := d.Process(context.Background(), agenkit.NewMessage(agenkit.RoleUser, "x"))
	var te *TimeoutError
	if !errors.As(err, &te) || te.AgentName != "slow" {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("TimeoutError should match context.DeadlineExceeded")
	}

	fast := NewTimeoutDecorator(failTimes(0), TimeoutConfig{})
	if resp, err := fast.Process(context.Background(), agenkit.NewMessage(agenkit.RoleUser, "x")); err != nil || resp.Content != "ok" {
		t.Fatalf("got %v, %v", resp, err)
	}

	boom := errors.New("bad request")
	failing := NewTimeoutDecorator(&stubAgent{name: "f", process: func(context.Context, int32) (*agenkit.Message, error) {
		return nil, boom
	}}, TimeoutConfig{Timeout: time.Second})
	if _, err := failing.Process(context.Background(), agenkit.NewMessage(agenkit.RoleUser, "x")); !errors.Is(err, boom) {
		t.Errorf("expected original error, got %v", err)
	}

	if s := d.Stats(); s.Total != 1 || s.TimedOut != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
	if s := failing.Stats(); s.Failed != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
	if fast.Introspect().InternalState["timeout"] != "30s" {
		t.Error("expected default timeout in introspection")
	}
}
