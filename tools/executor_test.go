package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

// flakyTool fails a configurable number of times before succeeding.
type flakyTool struct {
	failures int
	code     ErrorCode
	calls    int
}

func (t *flakyTool) Metadata() ToolMetadata {
	return ToolMetadata{Name: "flaky", Description: "test tool"}
}

func (t *flakyTool) Validate(args json.RawMessage) error { return nil }

func (t *flakyTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	t.calls++
	if t.calls <= t.failures {
		return "", Errorf(t.code, "flaky", "induced failure %d", t.calls)
	}
	return "ok", nil
}

// slowTool blocks until its context is done.
type slowTool struct{}

func (slowTool) Metadata() ToolMetadata {
	return ToolMetadata{Name: "slow", Description: "test tool"}
}

func (slowTool) Validate(args json.RawMessage) error { return nil }

func (slowTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestExecutorRetriesTransientFailures(t *testing.T) {
	tool := &flakyTool{failures: 2, code: CodeExecFailed}
	exec := NewExecutor(ExecConfig{MaxRetries: 3})

	out, err := exec.Execute(context.Background(), tool, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != "ok" {
		t.Errorf("output = %q, want ok", out)
	}
	if tool.calls != 3 {
		t.Errorf("calls = %d, want 3", tool.calls)
	}
}

func TestExecutorDoesNotRetryPermanentFailures(t *testing.T) {
	tests := []struct {
		name string
		code ErrorCode
	}{
		{name: "not found", code: CodeNotFound},
		{name: "schema violation", code: CodeSchemaViolation},
		{name: "permission denied", code: CodePermissionDenied},
		{name: "too large", code: CodeTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := &flakyTool{failures: 10, code: tt.code}
			exec := NewExecutor(ExecConfig{MaxRetries: 3})

			_, err := exec.Execute(context.Background(), tool, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if tool.calls != 1 {
				t.Errorf("calls = %d, want 1 (no retry)", tool.calls)
			}
			if CodeOf(err) != tt.code {
				t.Errorf("code = %s, want %s", CodeOf(err), tt.code)
			}
		})
	}
}

func TestExecutorExhaustsRetries(t *testing.T) {
	tool := &flakyTool{failures: 10, code: CodeExecFailed}
	exec := NewExecutor(ExecConfig{MaxRetries: 2})

	_, err := exec.Execute(context.Background(), tool, nil)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if tool.calls != 2 {
		t.Errorf("calls = %d, want 2", tool.calls)
	}
}

func TestExecutorTimeout(t *testing.T) {
	exec := NewExecutor(ExecConfig{Timeout: 20 * time.Millisecond, MaxRetries: 1})

	_, err := exec.Execute(context.Background(), slowTool{}, nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if CodeOf(err) != CodeTimeout {
		t.Errorf("code = %s, want %s", CodeOf(err), CodeTimeout)
	}
}

func TestExecutorHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tool := &flakyTool{failures: 10, code: CodeExecFailed}
	exec := NewExecutor(ExecConfig{MaxRetries: 5})

	_, err := exec.Execute(ctx, tool, nil)
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	if d := backoffDelay(1); d != 200*time.Millisecond {
		t.Errorf("attempt 1 delay = %v", d)
	}
	if d := backoffDelay(20); d != 5*time.Second {
		t.Errorf("large attempt should cap at 5s, got %v", d)
	}
}
