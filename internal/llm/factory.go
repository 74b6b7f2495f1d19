package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/spice-ingest/internal/common"
)

// LimitedClient wraps a provider with a client-side rate limiter and a
// per-call time box. It owns the limiter goroutine, stopped by Close.
type LimitedClient struct {
	provider Client
	limiter  *rateLimiter
	name     string
	timeout  time.Duration
}

// NewClient creates a rate-limited completion client for the configured provider.
func NewClient(ctx context.Context, cfg Config) (*LimitedClient, error) {
	var provider Client
	var err error

	name := strings.ToLower(cfg.Provider)
	switch name {
	case ProviderGemini, "":
		name = ProviderGemini
		provider, err = newGeminiClient(ctx, cfg)
	case ProviderOpenAI:
		provider, err = newOpenAIClient(cfg)
	case ProviderAnthropic:
		provider, err = newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported LLM provider: %s", common.ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	return Wrap(name, provider, cfg), nil
}

// Wrap applies rate limiting and the configured timeout to an existing provider.
func Wrap(name string, provider Client, cfg Config) *LimitedClient {
	return &LimitedClient{
		provider: provider,
		limiter:  newRateLimiter(cfg.RateLimit),
		name:     name,
		timeout:  cfg.timeout(),
	}
}

// Complete waits for a rate-limit token and calls the provider within the
// configured timeout. Calls are never retried.
func (c *LimitedClient) Complete(ctx context.Context, req Request) (string, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	text, err := c.provider.Complete(callCtx, req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, common.ErrUpstreamTimeout) {
			err = &common.UpstreamError{
				Provider: c.name,
				Message:  fmt.Sprintf("no response within %s", c.timeout),
				Err:      common.ErrUpstreamTimeout,
			}
		}
		slog.DebugContext(ctx, "Completion request failed",
			"provider", c.name,
			"duration", time.Since(start),
			"error", err)
		return "", err
	}

	slog.DebugContext(ctx, "Completion request succeeded",
		"provider", c.name,
		"duration", time.Since(start),
		"attachment", req.Attachment != nil,
		"response_bytes", len(text))

	return text, nil
}

// Provider returns the provider name.
func (c *LimitedClient) Provider() string {
	return c.name
}

// Close stops the rate limiter.
func (c *LimitedClient) Close() {
	c.limiter.Close()
}
