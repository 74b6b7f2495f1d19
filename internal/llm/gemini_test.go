package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Veraticus/spice-ingest/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGemini(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := newGeminiClient(context.Background(), Config{
		APIKey:  "test-key",
		Model:   "gemini-test",
		BaseURL: server.URL + "/",
	})
	require.NoError(t, err)
	return client
}

func TestGeminiClient_Complete(t *testing.T) {
	var got map[string]any
	client := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-test:generateContent"), r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"[]"}]}}]}`))
	})

	text, err := client.Complete(context.Background(), Request{
		System:     "extract transactions",
		Prompt:     "statement attached",
		Attachment: &Attachment{MIMEType: "application/pdf", Data: []byte("%PDF-1.4")},
		JSON:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, "[]", text)

	contents := got["contents"].([]any)
	require.Len(t, contents, 1)
	parts := contents[0].(map[string]any)["parts"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "statement attached", parts[0].(map[string]any)["text"])
	inline := parts[1].(map[string]any)["inlineData"].(map[string]any)
	assert.Equal(t, "application/pdf", inline["mimeType"])

	assert.NotNil(t, got["systemInstruction"])
	genCfg := got["generationConfig"].(map[string]any)
	assert.Equal(t, "application/json", genCfg["responseMimeType"])
}

func TestGeminiClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		wantErr error
	}{
		{
			name:    "per minute throttle",
			status:  http.StatusTooManyRequests,
			body:    `{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED","details":[{"violations":[{"quotaId":"GenerateRequestsPerMinutePerProjectPerModel"}]}]}}`,
			wantErr: common.ErrUpstreamRateLimited,
		},
		{
			name:    "daily quota",
			status:  http.StatusTooManyRequests,
			body:    `{"error":{"code":429,"message":"Quota exceeded","status":"RESOURCE_EXHAUSTED","details":[{"violations":[{"quotaId":"GenerateRequestsPerDayPerProjectPerModel-FreeTier"}]}]}}`,
			wantErr: common.ErrUpstreamQuotaExhausted,
		},
		{
			name:    "unavailable",
			status:  http.StatusServiceUnavailable,
			body:    `{"error":{"code":503,"message":"The model is overloaded","status":"UNAVAILABLE"}}`,
			wantErr: common.ErrUpstreamUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestGemini(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Complete(context.Background(), Request{Prompt: "x"})
			require.ErrorIs(t, err, tt.wantErr)

			var upstream *common.UpstreamError
			require.ErrorAs(t, err, &upstream)
			assert.Equal(t, "gemini", upstream.Provider)
		})
	}
}
