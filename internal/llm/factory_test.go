package llm

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Veraticus/spice-ingest/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowClient blocks until its context ends.
type slowClient struct{}

func (slowClient) Complete(ctx context.Context, _ Request) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		wantName string
		wantErr  bool
	}{
		{name: "openai", config: Config{Provider: "openai", APIKey: "k"}, wantName: ProviderOpenAI},
		{name: "anthropic uppercase", config: Config{Provider: "Anthropic", APIKey: "k"}, wantName: ProviderAnthropic},
		{name: "gemini", config: Config{Provider: "gemini", APIKey: "k"}, wantName: ProviderGemini},
		{name: "default is gemini", config: Config{APIKey: "k"}, wantName: ProviderGemini},
		{name: "unknown provider", config: Config{Provider: "llama", APIKey: "k"}, wantErr: true},
		{name: "missing key", config: Config{Provider: "openai"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(context.Background(), tt.config)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer client.Close()
			assert.Equal(t, tt.wantName, client.Provider())
		})
	}
}

func TestNewClient_UnknownProviderIsConfigError(t *testing.T) {
	_, err := NewClient(context.Background(), Config{Provider: "llama"})
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestLimitedClient_Timeout(t *testing.T) {
	client := Wrap("slow", slowClient{}, Config{Timeout: 20 * time.Millisecond})
	defer client.Close()

	_, err := client.Complete(context.Background(), Request{Prompt: "x"})
	require.ErrorIs(t, err, common.ErrUpstreamTimeout)

	var upstream *common.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "slow", upstream.Provider)
}

func TestLimitedClient_PassesThrough(t *testing.T) {
	inner := &fakeClient{responses: []string{"ok"}}
	client := Wrap("fake", inner, Config{RateLimit: 10})
	defer client.Close()

	text, err := client.Complete(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 1, inner.calls())
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		body    string
		status  int
		wantErr error
	}{
		{status: http.StatusTooManyRequests, body: "slow down", wantErr: common.ErrUpstreamRateLimited},
		{status: http.StatusTooManyRequests, body: "insufficient_quota", wantErr: common.ErrUpstreamQuotaExhausted},
		{status: http.StatusPaymentRequired, body: "", wantErr: common.ErrUpstreamQuotaExhausted},
		{status: http.StatusRequestTimeout, body: "", wantErr: common.ErrUpstreamTimeout},
		{status: http.StatusBadGateway, body: "", wantErr: common.ErrUpstreamUnavailable},
	}

	for _, tt := range tests {
		err := statusError("p", tt.status, tt.body)
		assert.ErrorIs(t, err, tt.wantErr, "status %d body %q", tt.status, tt.body)
	}

	plain := statusError("p", http.StatusBadRequest, "bad request")
	assert.NotErrorIs(t, plain, common.ErrUpstreamRateLimited)
	assert.Contains(t, plain.Error(), "status 400")
}

func TestTransportError(t *testing.T) {
	err := transportError("p", context.DeadlineExceeded)
	assert.ErrorIs(t, err, common.ErrUpstreamTimeout)

	err = transportError("p", assert.AnError)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NotErrorIs(t, err, common.ErrUpstreamTimeout)
}
