package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/spice-ingest/internal/common"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// geminiClient implements the Client interface on the Gemini API.
type geminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int
}

// newGeminiClient creates a Gemini client. An empty API key falls back to the
// GOOGLE_API_KEY / GEMINI_API_KEY environment variables read by the SDK.
func newGeminiClient(ctx context.Context, cfg Config) (Client, error) {
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &geminiClient{
		client:      client,
		model:       model,
		temperature: float32(cfg.temperature()),
		maxTokens:   cfg.maxTokens(),
	}, nil
}

// Complete sends the prompt, plus any attachment as inline data, to Gemini.
func (c *geminiClient) Complete(ctx context.Context, req Request) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if req.Attachment != nil {
		parts = append(parts, genai.NewPartFromBytes(req.Attachment.Data, req.Attachment.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.temperature),
		MaxOutputTokens: int32(requestTokens(req, c.maxTokens)),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", geminiError(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini returned no content")
	}
	return text, nil
}

func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		body := apiErr.Message
		if apiErr.Status != "" {
			body = apiErr.Status + ": " + body
		}
		for _, detail := range apiErr.Details {
			if id, ok := detail["quotaId"].(string); ok {
				body += " " + id
			}
			if violations, ok := detail["violations"].([]any); ok {
				for _, v := range violations {
					if m, ok := v.(map[string]any); ok {
						if id, ok := m["quotaId"].(string); ok {
							body += " " + id
						}
					}
				}
			}
		}
		return statusError("gemini", apiErr.Code, body)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &common.UpstreamError{Provider: "gemini", Message: err.Error(), Err: common.ErrUpstreamTimeout}
	}
	return fmt.Errorf("gemini request failed: %w", err)
}
