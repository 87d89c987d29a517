package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ai-prompt-enhancer/internal/config"
	"ai-prompt-enhancer/internal/domain"
	"ai-prompt-enhancer/internal/domain/model"
	"ai-prompt-enhancer/internal/domain/ports/adapter"
	"ai-prompt-enhancer/internal/infra/logging"
	"ai-prompt-enhancer/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Result is a successful enhancement and the provider that produced it.
type Result struct {
	Content  string
	Provider string
}

// ProviderHealth is a read-only view of one circuit, for /health.
type ProviderHealth struct {
	Name              string    `json:"name"`
	Available         bool      `json:"available"`
	ConsecutiveErrors int       `json:"consecutiveErrors"`
	LastErrorAt       time.Time `json:"lastErrorAt,omitzero"`
}

type providerStatus struct {
	available         bool
	consecutiveErrors int
	lastErrorAt       time.Time
}

// FailoverClient tries providers in configured order. Each provider has a
// time-based circuit: threshold consecutive failures open it, and it closes
// again once cooldown has passed since the last failure.
type FailoverClient struct {
	providers   []adapter.EnhancementProvider
	builder     PromptBuilder
	threshold   int
	cooldown    time.Duration
	callTimeout time.Duration
	retry       RetryPolicy

	mu     sync.Mutex
	status map[string]*providerStatus

	now   func() time.Time
	sleep sleepFunc
	log   *zerolog.Logger
}

type FailoverOption func(*FailoverClient)

func WithFailoverClock(now func() time.Time) FailoverOption {
	return func(c *FailoverClient) { c.now = now }
}

// WithSleep replaces the backoff sleep, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) FailoverOption {
	return func(c *FailoverClient) { c.sleep = sleep }
}

func WithPromptBuilder(b PromptBuilder) FailoverOption {
	return func(c *FailoverClient) { c.builder = b }
}

func NewFailoverClient(providers []adapter.EnhancementProvider, cfg config.AIConfig, log *zerolog.Logger, opts ...FailoverOption) *FailoverClient {
	l := log.With().Str("component", "ai_failover").Logger()
	c := &FailoverClient{
		providers:   providers,
		builder:     NewTemplateBuilder(),
		threshold:   cfg.FailureThreshold,
		cooldown:    cfg.Cooldown,
		callTimeout: cfg.CallTimeout,
		retry:       RetryPolicy{Attempts: cfg.RetryAttempts, BaseDelay: cfg.RetryBaseDelay},
		status:      make(map[string]*providerStatus, len(providers)),
		now:         time.Now,
		sleep:       sleepCtx,
		log:         &l,
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, p := range providers {
		c.status[p.Name()] = &providerStatus{available: true}
		metrics.SetProviderAvailable(p.Name(), true)
	}
	return c
}

// Enhance renders the payload and returns the first successful completion.
// When every candidate fails, the last provider's error is returned wrapped in
// domain.ErrAllProvidersUnavailable.
func (c *FailoverClient) Enhance(ctx context.Context, payload model.Payload) (Result, error) {
	defer logging.TraceDuration(c.log, "FailoverClient.Enhance")()

	prompt, err := c.builder.Build(payload)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", domain.ErrProcessing, err)
	}

	candidates := c.candidates()
	if len(candidates) == 0 {
		return Result{}, domain.ErrAllProvidersUnavailable
	}

	log := logging.With(ctx, c.log)
	var lastErr error
	for _, p := range candidates {
		comp, err := c.call(ctx, p, prompt)
		if err == nil {
			c.recordSuccess(p.Name())
			return Result{Content: comp.Text, Provider: p.Name()}, nil
		}
		lastErr = err
		pe := normalize(p.Name(), err)
		if errors.Is(ctx.Err(), context.Canceled) || pe.Kind == KindCanceled {
			// abandoned by the caller; the provider's circuit is left alone
			log.Info().Str("provider", pe.Provider).Msg("provider attempt canceled")
			break
		}
		c.recordFailure(p.Name())

		log.Warn().Str("provider", pe.Provider).Str("kind", string(pe.Kind)).Int("status", pe.StatusCode).Msg("provider attempt failed")
		if ctx.Err() != nil {
			break
		}
	}
	return Result{}, fmt.Errorf("%w: %w", domain.ErrAllProvidersUnavailable, lastErr)
}

// Health snapshots every circuit in provider order.
func (c *FailoverClient) Health() []ProviderHealth {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	out := make([]ProviderHealth, 0, len(c.providers))
	for _, p := range c.providers {
		st := c.refreshLocked(p.Name(), now)
		out = append(out, ProviderHealth{
			Name:              p.Name(),
			Available:         st.available,
			ConsecutiveErrors: st.consecutiveErrors,
			LastErrorAt:       st.lastErrorAt,
		})
	}
	return out
}

func (c *FailoverClient) call(ctx context.Context, p adapter.EnhancementProvider, prompt adapter.Prompt) (adapter.Completion, error) {
	var out adapter.Completion
	err := c.retry.Do(ctx, c.sleep, func(ctx context.Context) error {
		callCtx := ctx
		if c.callTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.callTimeout)
			defer cancel()
		}

		start := time.Now()
		comp, err := p.Complete(callCtx, prompt)
		latency := time.Since(start).Milliseconds()
		if err != nil {
			pe := normalize(p.Name(), err)
			metrics.ObserveAICall(p.Name(), 0, 0, latency, false)
			metrics.IncProviderFailure(p.Name(), string(pe.Kind))
			return pe
		}
		metrics.ObserveAICall(p.Name(), comp.Usage.PromptTokens, comp.Usage.CompletionTokens, latency, true)
		out = comp
		return nil
	})
	return out, err
}

func (c *FailoverClient) candidates() []adapter.EnhancementProvider {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	out := make([]adapter.EnhancementProvider, 0, len(c.providers))
	for _, p := range c.providers {
		if c.refreshLocked(p.Name(), now).available {
			out = append(out, p)
		}
	}
	return out
}

// refreshLocked resets a circuit once the cooldown since its last error has
// elapsed, whether or not any call happened in between.
func (c *FailoverClient) refreshLocked(name string, now time.Time) *providerStatus {
	st := c.status[name]
	if st == nil {
		st = &providerStatus{available: true}
		c.status[name] = st
	}
	if st.consecutiveErrors > 0 && now.Sub(st.lastErrorAt) >= c.cooldown {
		if !st.available {
			c.log.Info().Str("provider", name).Msg("provider circuit closed after cooldown")
			metrics.SetProviderAvailable(name, true)
		}
		st.available = true
		st.consecutiveErrors = 0
	}
	return st
}

func (c *FailoverClient) recordSuccess(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.refreshLocked(name, c.now())
	st.consecutiveErrors = 0
	if !st.available {
		st.available = true
		metrics.SetProviderAvailable(name, true)
	}
}

func (c *FailoverClient) recordFailure(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.refreshLocked(name, c.now())
	st.consecutiveErrors++
	st.lastErrorAt = c.now()
	if st.available && st.consecutiveErrors >= c.threshold {
		st.available = false
		c.log.Warn().Str("provider", name).Int("errors", st.consecutiveErrors).Dur("cooldown", c.cooldown).Msg("provider circuit opened")
		metrics.SetProviderAvailable(name, false)
	}
}
