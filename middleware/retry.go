// Package middleware provides decorators that harden model-backed agents:
// retry with exponential backoff and a per-call timeout.
//
// Decorate the agent that talks to the model, not a ReAct loop, so that a
// retried call never repeats a tool side effect such as an export.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts includes the initial attempt. Default: 3
	MaxAttempts int

	// InitialBackoff default: 100ms
	InitialBackoff time.Duration

	// MaxBackoff default: 10s
	MaxBackoff time.Duration

	// BackoffMultiplier default: 2.0
	BackoffMultiplier float64

	// ShouldRetry decides whether an error is retried. The default retries
	// everything except context cancellation and deadline errors.
	ShouldRetry func(error) bool

	Logger *slog.Logger
}

// DefaultRetryConfig returns a retry config with sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

func retryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// RetryDecorator wraps an agent with retry logic.
type RetryDecorator struct {
	agent  agenkit.Agent
	config RetryConfig
}

var _ agenkit.Agent = (*RetryDecorator)(nil)

// NewRetryDecorator creates a new retry decorator.
func NewRetryDecorator(agent agenkit.Agent, config RetryConfig) *RetryDecorator {
	defaults := DefaultRetryConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = defaults.BackoffMultiplier
	}
	if config.ShouldRetry == nil {
		config.ShouldRetry = retryable
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &RetryDecorator{agent: agent, config: config}
}

// Name returns the name of the underlying agent.
func (r *RetryDecorator) Name() string { return r.agent.Name() }

// Description returns the underlying agent's description, if any.
func (r *RetryDecorator) Description() string { return describe(r.agent) }

// Capabilities returns the capabilities of the underlying agent.
func (r *RetryDecorator) Capabilities() []string { return r.agent.Capabilities() }

// Introspect reports the wrapped agent and the retry policy.
func (r *RetryDecorator) Introspect() *agenkit.IntrospectionResult {
	result := r.agent.Introspect()
	result.InternalState["retry_max_attempts"] = r.config.MaxAttempts
	return result
}

// Process calls the wrapped agent, retrying failures with backoff.
func (r *RetryDecorator) Process(ctx context.Context, message *agenkit.Message) (*agenkit.Message, error) {
	var lastErr error
	backoff := r.config.InitialBackoff

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		response, err := r.agent.Process(ctx, message)
		if err == nil {
			return response, nil
		}
		lastErr = err

		if !r.config.ShouldRetry(err) {
			return nil, fmt.Errorf("non-retryable error on attempt %d/%d: %w", attempt, r.config.MaxAttempts, err)
		}
		if attempt == r.config.MaxAttempts {
			break
		}

		r.config.Logger.Debug("retrying agent", "agent", r.Name(), "attempt", attempt, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("retry cancelled after %d attempts: %w", attempt, ctx.Err())
		case <-time.After(backoff):
			backoff = time.Duration(float64(backoff) * r.config.BackoffMultiplier)
			if backoff > r.config.MaxBackoff {
				backoff = r.config.MaxBackoff
			}
		}
	}

	return nil, fmt.Errorf("max retry attempts (%d) exceeded: %w", r.config.MaxAttempts, lastErr)
}

func describe(agent agenkit.Agent) string {
	if d, ok := agent.(agenkit.Describer); ok {
		return d.Description()
	}
	return ""
}
