package llm

import (
	"context"
	"time"
)

// Client defines the interface for generative completion providers.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Request is a single completion call.
type Request struct {
	Attachment *Attachment
	System     string
	Prompt     string
	MaxTokens  int  // zero uses the client default
	JSON       bool // ask for a JSON-only response where the provider supports it
}

// Attachment is binary content sent alongside the prompt, e.g. a statement scan.
type Attachment struct {
	MIMEType string
	Data     []byte
}

// Config holds configuration for a completion client.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	CacheTTL    time.Duration
	RateLimit   int
	Temperature float64
	MaxTokens   int
}

// Provider names accepted by NewClient.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultTemperature = 0.1
	defaultMaxTokens   = 4096
)

func (c Config) temperature() float64 {
	if c.Temperature == 0 {
		return defaultTemperature
	}
	return c.Temperature
}

func (c Config) maxTokens() int {
	if c.MaxTokens == 0 {
		return defaultMaxTokens
	}
	return c.MaxTokens
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout
}

func requestTokens(req Request, fallback int) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return fallback
}
