package ai

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"ai-prompt-enhancer/internal/domain/ports/adapter"
)

var _ adapter.EnhancementProvider = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client *genai.Client
	model  string
	maxOut int
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, model string, maxOut int) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{client: c, model: model, maxOut: maxOut}, nil
}

func (g *GeminiAdapter) Name() string { return "gemini" }

func (g *GeminiAdapter) Complete(ctx context.Context, prompt adapter.Prompt) (adapter.Completion, error) {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(g.maxOut),
	}
	if prompt.System != "" {
		// system text goes through SystemInstruction, never into the user turn
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: prompt.System}}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt.User), cfg)
	if err != nil {
		return adapter.Completion{}, classifyGemini(err)
	}

	// Extract text
	var sb strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, p := range resp.Candidates[0].Content.Parts {
			if p != nil && p.Text != "" {
				sb.WriteString(p.Text)
			}
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return adapter.Completion{}, &ProviderError{Provider: g.Name(), Kind: KindUnknown, Err: errEmptyCompletion}
	}

	u := adapter.Usage{}
	if resp.UsageMetadata != nil {
		u.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		u.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return adapter.Completion{Text: text, Usage: u}, nil
}

// classifyGemini maps SDK errors by HTTP code, falling back to the RPC status name.
func classifyGemini(err error) *ProviderError {
	var (
		code   int
		status string
		found  bool
	)
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code, status, found = apiErr.Code, apiErr.Status, true
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		code, status, found = apiErrPtr.Code, apiErrPtr.Status, true
	}
	if !found {
		return normalize("gemini", err)
	}

	kind := kindFromStatus(code)
	if code == 0 || kind == KindUnknown {
		switch strings.ToUpper(status) {
		case "UNAUTHENTICATED", "PERMISSION_DENIED":
			kind = KindInvalidCredentials
		case "RESOURCE_EXHAUSTED":
			kind = KindQuotaExceeded
		case "NOT_FOUND":
			kind = KindNotFound
		case "DEADLINE_EXCEEDED":
			kind = KindTimeout
		case "INVALID_ARGUMENT", "FAILED_PRECONDITION", "OUT_OF_RANGE":
			kind = KindInvalidRequest
		case "UNAVAILABLE":
			kind = KindNetwork
		}
	}
	return &ProviderError{Provider: "gemini", Kind: kind, StatusCode: code, Err: err}
}
