package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
)

// DefaultTimeout bounds a single model call.
const DefaultTimeout = 30 * time.Second

// TimeoutConfig configures timeout behavior.
type TimeoutConfig struct {
	// Timeout default: 30 seconds
	Timeout time.Duration
}

// TimeoutStats counts outcomes of decorated calls.
type TimeoutStats struct {
	Total     int64
	Succeeded int64
	TimedOut  int64
	Failed    int64
	MaxTime   time.Duration
}

// TimeoutError is returned when a request exceeds the configured timeout.
type TimeoutError struct {
	AgentName string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to agent '%s' timed out after %v", e.AgentName, e.Timeout)
}

// Unwrap lets errors.Is match context.DeadlineExceeded.
func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// TimeoutDecorator wraps an agent with timeout protection.
//
// The agent runs in its own goroutine so that an agent ignoring its context
// still cannot hold the caller past the deadline.
type TimeoutDecorator struct {
	agent  agenkit.Agent
	config TimeoutConfig

	mu    sync.Mutex
	stats TimeoutStats
}

var _ agenkit.Agent = (*TimeoutDecorator)(nil)

// NewTimeoutDecorator creates a new timeout decorator.
func NewTimeoutDecorator(agent agenkit.Agent, config TimeoutConfig) *TimeoutDecorator {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &TimeoutDecorator{agent: agent, config: config}
}

// Name returns the name of the underlying agent.
func (t *TimeoutDecorator) Name() string { return t.agent.Name() }

// Description returns the underlying agent's description, if any.
func (t *TimeoutDecorator) Description() string { return describe(t.agent) }

// Capabilities returns the capabilities of the underlying agent.
func (t *TimeoutDecorator) Capabilities() []string { return t.agent.Capabilities() }

// Introspect reports the wrapped agent and the timeout.
func (t *TimeoutDecorator) Introspect() *agenkit.IntrospectionResult {
	result := t.agent.Introspect()
	result.InternalState["timeout"] = t.config.Timeout.String()
	return result
}

// Stats returns a snapshot of the call counters.
func (t *TimeoutDecorator) Stats() TimeoutStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *TimeoutDecorator) record(d time.Duration, timedOut bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Total++
	switch {
	case timedOut:
		t.stats.TimedOut++
	case err != nil:
		t.stats.Failed++
	default:
		t.stats.Succeeded++
	}
	if d > t.stats.MaxTime {
		t.stats.MaxTime = d
	}
}

// Process runs the wrapped agent under the timeout.
func (t *TimeoutDecorator) Process(ctx context.Context, message *agenkit.Message) (*agenkit.Message, error) {
	start := time.Now()
	timeoutCtx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	type result struct {
		msg *agenkit.Message
		err error
	}
	// Buffered so the goroutine can finish after we stop waiting.
	done := make(chan result, 1)
	go func() {
		msg, err := t.agent.Process(timeoutCtx, message)
		done <- result{msg, err}
	}()

	select {
	case res := <-done:
		timedOut := res.err != nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		t.record(time.Since(start), timedOut, res.err)
		if timedOut {
			return nil, &TimeoutError{AgentName: t.Name(), Timeout: t.config.Timeout}
		}
		return res.msg, res.err

	case <-timeoutCtx.Done():
		if err := ctx.Err(); err != nil {
			t.record(time.Since(start), false, err)
			return nil, err
		}
		t.record(time.Since(start), true, nil)
		return nil, &TimeoutError{AgentName: t.Name(), Timeout: t.config.Timeout}
	}
}
