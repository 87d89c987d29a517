package ai

import (
	"context"
	"strings"
	"time"

	"ai-prompt-enhancer/internal/domain/ports/adapter"
)

var _ adapter.EnhancementProvider = (*NoopProvider)(nil)

// NoopProvider answers locally for dev runs without API keys.
type NoopProvider struct {
	Delay time.Duration
}

func NewNoopProvider() *NoopProvider {
	return &NoopProvider{Delay: 100 * time.Millisecond}
}

func (a *NoopProvider) Name() string { return "noop" }

// Complete simulates a short call and echoes the rendered user prompt.
func (a *NoopProvider) Complete(ctx context.Context, prompt adapter.Prompt) (adapter.Completion, error) {
	select {
	case <-time.After(a.Delay):
	case <-ctx.Done():
		return adapter.Completion{}, &ProviderError{Provider: a.Name(), Kind: KindTimeout, Err: ctx.Err()}
	}
	text := "[noop] " + strings.TrimSpace(prompt.User)
	return adapter.Completion{
		Text:  text,
		Usage: adapter.Usage{PromptTokens: len(strings.Fields(prompt.System + " " + prompt.User)), CompletionTokens: len(strings.Fields(text))},
	}, nil
}
