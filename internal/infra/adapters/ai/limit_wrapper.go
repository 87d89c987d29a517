package ai

import (
	"context"

	"ai-prompt-enhancer/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.EnhancementProvider = (*limitedProvider)(nil)

type limitedProvider struct {
	inner adapter.EnhancementProvider
	sem   chan struct{}
}

// NewLimitedProvider caps concurrent calls to inner. Waiting for a slot honours ctx.
func NewLimitedProvider(inner adapter.EnhancementProvider, maxConcurrent int) adapter.EnhancementProvider {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedProvider{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedProvider) Name() string { return l.inner.Name() }

func (l *limitedProvider) Complete(ctx context.Context, prompt adapter.Prompt) (adapter.Completion, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return adapter.Completion{}, normalize(l.inner.Name(), ctx.Err())
	}
	defer func() { <-l.sem }()
	return l.inner.Complete(ctx, prompt)
}
