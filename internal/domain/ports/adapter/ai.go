package adapter

import "context"

// Prompt is the provider-neutral request built from a job payload.
type Prompt struct {
	System string
	User   string
}

// Usage for a single completion call, as reported (or estimated) by the provider.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Completion is the assistant text plus usage.
type Completion struct {
	Text  string
	Usage Usage
}

// EnhancementProvider is the port each upstream LLM backend implements.
// Errors returned should be *ai.ProviderError so callers can classify them
// without provider-specific knowledge.
type EnhancementProvider interface {
	Name() string
	Complete(ctx context.Context, prompt Prompt) (Completion, error)
}
