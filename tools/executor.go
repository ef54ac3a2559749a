// Tool execution with per-call timeout and retry.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ExecConfig holds tool execution configuration.
// The zero value is safe: timeout defaults to 30s, retries to 3.
type ExecConfig struct {
	Timeout    time.Duration
	MaxRetries int
}

// timeout returns the configured timeout, defaulting to 30 seconds.
func (c ExecConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return c.Timeout
}

// retries returns the configured attempt count, defaulting to 3.
func (c ExecConfig) retries() int {
	if c.MaxRetries <= 0 {
		return 3
	}
	return c.MaxRetries
}

// Executor runs tools with schema validation, timeout and retry.
type Executor struct {
	config ExecConfig
}

// NewExecutor creates an executor with the given configuration.
func NewExecutor(config ExecConfig) *Executor {
	return &Executor{config: config}
}

// Execute validates and runs a tool, retrying transient failures with
// exponential backoff. The returned error is always a *Error (or a context
// error when the run was cancelled).
func (e *Executor) Execute(ctx context.Context, tool Tool, args json.RawMessage) (string, error) {
	name := tool.Metadata().Name

	if err := tool.Validate(args); err != nil {
		if _, ok := err.(*Error); ok {
			return "", err
		}
		return "", WrapError(CodeSchemaViolation, name, "invalid arguments", err)
	}

	var lastErr error
	attempts := e.config.retries()

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoffDelay(attempt)):
			}
		}

		output, err := e.executeOnce(ctx, tool, args)
		if err == nil {
			return output, nil
		}
		lastErr = err

		if !CodeOf(err).Retryable() {
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	return "", lastErr
}

// executeOnce runs the tool under its per-call timeout.
func (e *Executor) executeOnce(ctx context.Context, tool Tool, args json.RawMessage) (string, error) {
	name := tool.Metadata().Name

	callCtx, cancel := context.WithTimeout(ctx, e.config.timeout())
	defer cancel()

	output, err := tool.Execute(callCtx, args)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", WrapError(CodeTimeout, name, "tool call timed out", err)
		}
		if te, ok := err.(*Error); ok {
			return "", te
		}
		return "", WrapError(CodeExecFailed, name, "execution failed", err)
	}
	return output, nil
}

// backoffDelay returns the delay before the given retry attempt.
func backoffDelay(attempt int) time.Duration {
	const (
		baseDelay = 100 * time.Millisecond
		maxDelay  = 5 * time.Second
	)
	delay := baseDelay << uint(attempt)
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
