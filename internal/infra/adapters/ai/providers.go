package ai

import (
	"context"
	"errors"
	"fmt"

	"ai-prompt-enhancer/internal/config"
	"ai-prompt-enhancer/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

// NewProviders builds the provider chain in cfg.Order. Providers without a key
// are skipped with a warning; at least one must remain.
func NewProviders(ctx context.Context, cfg config.AIConfig, log *zerolog.Logger) ([]adapter.EnhancementProvider, error) {
	if cfg.Noop {
		log.Warn().Msg("ai: using noop provider")
		return []adapter.EnhancementProvider{NewNoopProvider()}, nil
	}

	out := make([]adapter.EnhancementProvider, 0, len(cfg.Order))
	for _, name := range cfg.Order {
		var (
			p   adapter.EnhancementProvider
			err error
		)
		switch name {
		case "gemini":
			if cfg.GeminiKey == "" {
				log.Warn().Msg("ai: gemini listed in order but no key configured, skipping")
				continue
			}
			p, err = NewGeminiAdapter(ctx, cfg.GeminiKey, cfg.GeminiURL, cfg.GeminiModel, cfg.MaxOutputTokens)
		case "openai":
			if cfg.OpenAIKey == "" {
				log.Warn().Msg("ai: openai listed in order but no key configured, skipping")
				continue
			}
			p, err = NewOpenAIAdapter(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.MaxOutputTokens, cfg.MaxInputTokens)
		default:
			return nil, fmt.Errorf("ai: unknown provider %q", name)
		}
		if err != nil {
			return nil, fmt.Errorf("ai: init %s: %w", name, err)
		}
		out = append(out, NewLimitedProvider(p, cfg.ConcurrentLimit))
		log.Info().Str("provider", name).Int("position", len(out)).Msg("ai provider enabled")
	}
	if len(out) == 0 {
		return nil, errors.New("ai: no provider could be initialised")
	}
	return out, nil
}
