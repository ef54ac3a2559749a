// Client - provider wrapper with retry and usage accounting.

package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// defaultRetries is the attempt count for transient backend failures.
const defaultRetries = 3

// Client wraps a Provider with retry, failure classification and cumulative
// token accounting.
type Client struct {
	provider Provider
	retries  int

	mu    sync.Mutex
	usage TokenUsage
}

// NewClient creates a new LLM client from a provider.
func NewClient(provider Provider) *Client {
	return &Client{provider: provider, retries: defaultRetries}
}

// WithRetries overrides the retry attempt count.
func (c *Client) WithRetries(n int) *Client {
	if n > 0 {
		c.retries = n
	}
	return c
}

// Chat sends a chat completion request and returns just the content.
func (c *Client) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	resp, err := c.call(ctx, func(ctx context.Context) (LLMResponse, error) {
		return c.provider.Chat(ctx, messages)
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// ChatWithFormat sends a chat completion request with a response format
// and returns just the content.
func (c *Client) ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (string, error) {
	resp, err := c.call(ctx, func(ctx context.Context) (LLMResponse, error) {
		return c.provider.ChatWithFormat(ctx, messages, format)
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Usage returns cumulative token usage across all calls on this client.
func (c *Client) Usage() TokenUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}

// call runs one provider call with classification and retry on transient
// failures. Token usage is accumulated on success.
func (c *Client) call(ctx context.Context, fn func(context.Context) (LLMResponse, error)) (LLMResponse, error) {
	var lastErr error

	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return LLMResponse{}, ctx.Err()
			case <-time.After(retryDelay(attempt, KindOf(lastErr))):
			}
		}

		resp, err := fn(ctx)
		if err == nil {
			c.record(resp.Usage)
			return resp, nil
		}
		lastErr = Classify(c.provider.Name(), err)

		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return LLMResponse{}, lastErr
		}
		if !KindOf(lastErr).Retryable() {
			return LLMResponse{}, lastErr
		}
	}

	return LLMResponse{}, lastErr
}

func (c *Client) record(usage *TokenUsage) {
	if usage == nil {
		return
	}
	c.mu.Lock()
	c.usage.Add(usage)
	c.mu.Unlock()
}

// retryDelay returns the backoff before a retry attempt. Rate limits back
// off harder than ordinary failures.
func retryDelay(attempt int, kind FailureKind) time.Duration {
	base := 250 * time.Millisecond
	if kind == FailureRateLimit {
		base = 2 * time.Second
	}
	delay := base << uint(attempt-1)
	if max := 30 * time.Second; delay > max {
		delay = max
	}
	return delay
}
