//go:build !integration

package ai_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ai-prompt-enhancer/internal/config"
	"ai-prompt-enhancer/internal/domain"
	"ai-prompt-enhancer/internal/domain/model"
	"ai-prompt-enhancer/internal/domain/ports/adapter"
	ai "ai-prompt-enhancer/internal/infra/adapters/ai"

	"github.com/rs/zerolog"
)

type stubProvider struct {
	name string

	mu      sync.Mutex
	calls   int
	errs    []error // consumed in order; the last one repeats
	reply   string
	prompts []adapter.Prompt
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(ctx context.Context, p adapter.Prompt) (adapter.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.prompts = append(s.prompts, p)
	if len(s.errs) > 0 {
		err := s.errs[0]
		if len(s.errs) > 1 {
			s.errs = s.errs[1:]
		}
		if err != nil {
			return adapter.Completion{}, err
		}
	}
	return adapter.Completion{Text: s.reply, Usage: adapter.Usage{PromptTokens: 3, CompletionTokens: 5}}, nil
}

func (s *stubProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func perr(provider string, kind ai.ErrorKind) error {
	return &ai.ProviderError{Provider: provider, Kind: kind}
}

func testAIConfig() config.AIConfig {
	return config.AIConfig{
		FailureThreshold: 3,
		Cooldown:         time.Minute,
		CallTimeout:      time.Second,
		RetryAttempts:    1,
		RetryBaseDelay:   10 * time.Millisecond,
	}
}

func newClient(cfg config.AIConfig, c *clock, sleeps *[]time.Duration, providers ...adapter.EnhancementProvider) *ai.FailoverClient {
	nop := zerolog.Nop()
	return ai.NewFailoverClient(providers, cfg, &nop,
		ai.WithFailoverClock(c.Now),
		ai.WithSleep(func(_ context.Context, d time.Duration) error {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
			return nil
		}),
	)
}

var samplePayload = model.PromptPayload{Task: "summarise a meeting", Tone: "casual"}

func TestEnhance_PrimaryFirst(t *testing.T) {
	primary := &stubProvider{name: "gemini", reply: "better prompt"}
	secondary := &stubProvider{name: "openai", reply: "other"}
	c := newClient(testAIConfig(), &clock{t: time.Now()}, nil, primary, secondary)

	res, err := c.Enhance(context.Background(), samplePayload)
	if err != nil {
		t.Fatal(err)
	}
	if res.Provider != "gemini" || res.Content != "better prompt" {
		t.Fatalf("unexpected result %+v", res)
	}
	if secondary.Calls() != 0 {
		t.Fatalf("secondary must not be called when primary succeeds")
	}
	if p := primary.prompts[0]; p.System == "" || !strings.Contains(p.User, "summarise a meeting") {
		t.Fatalf("prompt not rendered: %+v", p)
	}
}

func TestEnhance_FallsBackToSecondary(t *testing.T) {
	primary := &stubProvider{name: "gemini", errs: []error{perr("gemini", ai.KindNetwork)}}
	secondary := &stubProvider{name: "openai", reply: "from openai"}
	c := newClient(testAIConfig(), &clock{t: time.Now()}, nil, primary, secondary)

	res, err := c.Enhance(context.Background(), samplePayload)
	if err != nil {
		t.Fatal(err)
	}
	if res.Provider != "openai" {
		t.Fatalf("want openai, got %s", res.Provider)
	}
	h := c.Health()
	if h[0].ConsecutiveErrors != 1 || !h[0].Available {
		t.Fatalf("primary should have one recorded error: %+v", h[0])
	}
}

func TestEnhance_CircuitBreakerAndCooldown(t *testing.T) {
	clk := &clock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	primary := &stubProvider{name: "gemini", errs: []error{perr("gemini", ai.KindUnknown)}}
	secondary := &stubProvider{name: "openai", reply: "ok"}
	c := newClient(testAIConfig(), clk, nil, primary, secondary)

	for i := 0; i < 3; i++ {
		if _, err := c.Enhance(context.Background(), samplePayload); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		clk.t = clk.t.Add(time.Second)
	}
	if primary.Calls() != 3 {
		t.Fatalf("primary calls: %d", primary.Calls())
	}
	if c.Health()[0].Available {
		t.Fatalf("primary circuit should be open after threshold")
	}

	if _, err := c.Enhance(context.Background(), samplePayload); err != nil {
		t.Fatal(err)
	}
	if primary.Calls() != 3 {
		t.Fatalf("open circuit must skip the primary, calls=%d", primary.Calls())
	}

	// cooldown counts from the last error, not the last request
	clk.t = clk.t.Add(time.Minute)
	primary.errs = []error{nil}
	primary.reply = "recovered"
	res, err := c.Enhance(context.Background(), samplePayload)
	if err != nil {
		t.Fatal(err)
	}
	if res.Provider != "gemini" || primary.Calls() != 4 {
		t.Fatalf("primary should be retried after cooldown: %+v calls=%d", res, primary.Calls())
	}
	if h := c.Health()[0]; !h.Available || h.ConsecutiveErrors != 0 {
		t.Fatalf("circuit should be closed and reset: %+v", h)
	}
}

func TestEnhance_AllOpenFailsFast(t *testing.T) {
	clk := &clock{t: time.Now()}
	cfg := testAIConfig()
	cfg.FailureThreshold = 1
	a := &stubProvider{name: "gemini", errs: []error{perr("gemini", ai.KindNetwork)}}
	b := &stubProvider{name: "openai", errs: []error{perr("openai", ai.KindQuotaExceeded)}}
	c := newClient(cfg, clk, nil, a, b)

	_, err := c.Enhance(context.Background(), samplePayload)
	if !errors.Is(err, domain.ErrAllProvidersUnavailable) {
		t.Fatalf("want exhausted error, got %v", err)
	}
	// the last provider's classification is surfaced
	if ai.KindOf(err) != ai.KindQuotaExceeded {
		t.Fatalf("want last provider kind, got %s", ai.KindOf(err))
	}

	_, err = c.Enhance(context.Background(), samplePayload)
	if !errors.Is(err, domain.ErrAllProvidersUnavailable) {
		t.Fatalf("want fail fast, got %v", err)
	}
	if a.Calls() != 1 || b.Calls() != 1 {
		t.Fatalf("no network attempt expected while all circuits are open: a=%d b=%d", a.Calls(), b.Calls())
	}
}

func TestEnhance_RetryPolicy(t *testing.T) {
	cfg := testAIConfig()
	cfg.RetryAttempts = 3

	t.Run("transient errors are retried with backoff", func(t *testing.T) {
		var sleeps []time.Duration
		p := &stubProvider{name: "gemini", reply: "ok", errs: []error{
			perr("gemini", ai.KindTimeout), perr("gemini", ai.KindNetwork), nil,
		}}
		c := newClient(cfg, &clock{t: time.Now()}, &sleeps, p)
		res, err := c.Enhance(context.Background(), samplePayload)
		if err != nil || res.Content != "ok" {
			t.Fatalf("expected success after retries: %v", err)
		}
		if p.Calls() != 3 || len(sleeps) != 2 {
			t.Fatalf("calls=%d sleeps=%v", p.Calls(), sleeps)
		}
		if sleeps[0] < 5*time.Millisecond || sleeps[0] > 10*time.Millisecond ||
			sleeps[1] < 10*time.Millisecond || sleeps[1] > 20*time.Millisecond {
			t.Fatalf("backoff out of range: %v", sleeps)
		}
		if c.Health()[0].ConsecutiveErrors != 0 {
			t.Fatalf("a successful attempt resets the circuit")
		}
	})

	for _, kind := range []ai.ErrorKind{ai.KindQuotaExceeded, ai.KindInvalidRequest, ai.KindInvalidCredentials, ai.KindNotFound} {
		t.Run("no retry on "+string(kind), func(t *testing.T) {
			var sleeps []time.Duration
			p := &stubProvider{name: "gemini", errs: []error{perr("gemini", kind)}}
			c := newClient(cfg, &clock{t: time.Now()}, &sleeps, p)
			_, err := c.Enhance(context.Background(), samplePayload)
			if ai.KindOf(err) != kind {
				t.Fatalf("want %s, got %v", kind, err)
			}
			if p.Calls() != 1 || len(sleeps) != 0 {
				t.Fatalf("must not retry: calls=%d sleeps=%v", p.Calls(), sleeps)
			}
		})
	}
}

func TestEnhance_PlainErrorsAreNormalised(t *testing.T) {
	p := &stubProvider{name: "openai", errs: []error{context.DeadlineExceeded}}
	c := newClient(testAIConfig(), &clock{t: time.Now()}, nil, p)
	_, err := c.Enhance(context.Background(), samplePayload)
	if ai.KindOf(err) != ai.KindTimeout {
		t.Fatalf("deadline should normalise to timeout, got %v", err)
	}
}

func TestLimitedProvider_HonoursContext(t *testing.T) {
	block := make(chan struct{})
	slow := &blockingProvider{release: block, started: make(chan struct{})}
	lp := ai.NewLimitedProvider(slow, 1)

	done := make(chan struct{})
	go func() {
		_, _ = lp.Complete(context.Background(), adapter.Prompt{})
		close(done)
	}()
	<-slow.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := lp.Complete(ctx, adapter.Prompt{})
	if ai.KindOf(err) != ai.KindTimeout {
		t.Fatalf("waiting for a slot should time out, got %v", err)
	}
	close(block)
	<-done
}

type blockingProvider struct {
	release chan struct{}
	once    sync.Once
	started chan struct{}
}

func (b *blockingProvider) Name() string { return "slow" }

func (b *blockingProvider) Complete(ctx context.Context, _ adapter.Prompt) (adapter.Completion, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return adapter.Completion{Text: "done"}, nil
}

func TestEnhance_CanceledCallerLeavesCircuitClosed(t *testing.T) {
	cfg := testAIConfig()
	cfg.FailureThreshold = 1
	cfg.RetryAttempts = 3
	primary := &stubProvider{name: "gemini", errs: []error{context.Canceled}}
	secondary := &stubProvider{name: "openai", reply: "unused"}
	var sleeps []time.Duration
	c := newClient(cfg, &clock{t: time.Now()}, &sleeps, primary, secondary)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Enhance(ctx, samplePayload)
	if ai.KindOf(err) != ai.KindCanceled {
		t.Fatalf("want canceled, got %v", err)
	}
	if primary.Calls() != 1 || len(sleeps) != 0 {
		t.Fatalf("canceled calls are not retried: calls=%d sleeps=%v", primary.Calls(), sleeps)
	}
	if secondary.Calls() != 0 {
		t.Fatalf("no fallback once the caller is gone")
	}
	for _, h := range c.Health() {
		if !h.Available || h.ConsecutiveErrors != 0 {
			t.Fatalf("cancellation must not count against %s: %+v", h.Name, h)
		}
	}
}
