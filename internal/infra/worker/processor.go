package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"ai-prompt-enhancer/internal/domain"
	"ai-prompt-enhancer/internal/domain/model"
	ai "ai-prompt-enhancer/internal/infra/adapters/ai"
	"ai-prompt-enhancer/internal/infra/logging"
	"ai-prompt-enhancer/internal/infra/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// JobQueue is the part of queue.Store the processor drives.
type JobQueue interface {
	Busy() bool
	NextPending() (model.Job, bool)
	MarkProcessing(id string) bool
	MarkCompleted(id string, res model.JobResult) error
	MarkFailed(id string, jobErr model.JobError) error
	Stats() model.QueueStats
}

// Enhancer produces the content for one job.
type Enhancer interface {
	Enhance(ctx context.Context, payload model.Payload) (ai.Result, error)
}

// Processor advances at most one job at a time. It is driven by inbound
// requests through TryAdvance and, optionally, by the ticker in Run.
//
// Each dispatched job runs on its own goroutine. A call abandoned by stale
// recovery keeps running until its deadline but never delays the next job.
type Processor struct {
	queue    JobQueue
	enhancer Enhancer
	base     context.Context // parent of every job context

	guard      sync.Mutex    // re-entrancy guard, only ever TryLock'ed
	pace       *rate.Limiter // minimum interval between dispatches; nil disables
	jobTimeout time.Duration // 0 leaves job contexts without a deadline
	wg         sync.WaitGroup

	now func() time.Time
	log *zerolog.Logger
}

type ProcessorOption func(*Processor)

func WithProcessorClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

// WithJobTimeout bounds each provider call. Set it to the store's processing
// timeout so an abandoned call ends when its job is declared stale.
func WithJobTimeout(d time.Duration) ProcessorOption {
	return func(p *Processor) { p.jobTimeout = d }
}

// NewProcessor derives job contexts from base, which should outlive request
// contexts so in-flight work survives until Drain.
func NewProcessor(base context.Context, q JobQueue, enhancer Enhancer, minInterval time.Duration, log *zerolog.Logger, opts ...ProcessorOption) *Processor {
	l := log.With().Str("component", "processor").Logger()
	p := &Processor{
		queue:    q,
		enhancer: enhancer,
		base:     base,
		now:      time.Now,
		log:      &l,
	}
	if minInterval > 0 {
		p.pace = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// TryAdvance dispatches the head of the queue if nothing else is running and
// the pacing interval has elapsed. It never blocks on the provider call and
// reports whether a job was dispatched.
func (p *Processor) TryAdvance(ctx context.Context) bool {
	if !p.guard.TryLock() {
		return false
	}
	defer p.guard.Unlock()

	now := p.now()
	if p.pace != nil && p.pace.TokensAt(now) < 1 {
		return false
	}
	if p.queue.Busy() {
		return false
	}
	// NextPending also times out a stale in-flight job
	job, ok := p.queue.NextPending()
	if !ok {
		return false
	}
	if !p.queue.MarkProcessing(job.ID) {
		return false
	}
	if p.pace != nil {
		p.pace.AllowN(now, 1)
	}
	metrics.ObserveJobWait(now.Sub(job.CreatedAt).Seconds())
	metrics.SetPendingJobs(p.queue.Stats().Pending)

	logging.With(ctx, p.log).Debug().Str("job_id", job.ID).Msg("job dispatched")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		jobCtx, cancel := p.jobContext()
		defer cancel()
		p.process(jobCtx, job)
	}()
	return true
}

func (p *Processor) jobContext() (context.Context, context.CancelFunc) {
	if p.jobTimeout > 0 {
		return context.WithTimeout(p.base, p.jobTimeout)
	}
	return context.WithCancel(p.base)
}

// Run calls TryAdvance on every tick until ctx is done. It is only used by
// long-lived deployments; polling alone is enough to make progress.
func (p *Processor) Run(ctx context.Context, interval time.Duration) {
	p.log.Info().Dur("interval", interval).Msg("background advance loop started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("background advance loop stopping")
			return
		case <-ticker.C:
			p.TryAdvance(ctx)
		}
	}
}

// Drain waits for every dispatched job, including abandoned ones, or until ctx is done.
func (p *Processor) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor) process(ctx context.Context, job model.Job) {
	ctx = logging.WithJobID(logging.WithTraceID(ctx, job.RequestID), job.ID)
	log := logging.With(ctx, p.log)

	defer func() {
		if r := recover(); r != nil {
			// the panic value may echo the payload, so only the code is logged
			log.Error().Str("code", string(domain.CodeProcessing)).Msg("job panicked")
			p.fail(job.ID, domain.CodeProcessing)
		}
	}()

	start := time.Now()
	res, err := p.enhancer.Enhance(ctx, job.Payload)
	if err != nil {
		code := CodeFor(err)
		log.Warn().Str("code", string(code)).Dur("took", time.Since(start)).Msg("job failed")
		p.fail(job.ID, code)
		return
	}

	err = p.queue.MarkCompleted(job.ID, model.JobResult{Content: res.Content, ProviderUsed: res.Provider})
	if err != nil {
		// timed out or expired while the call was running
		log.Info().Str("code", string(domain.CodeOf(err))).Msg("late result discarded")
		return
	}
	log.Info().Str("provider", res.Provider).Dur("took", time.Since(start)).Msg("job completed")
}

func (p *Processor) fail(id string, code domain.ErrorCode) {
	err := p.queue.MarkFailed(id, model.JobError{Code: code, Message: domain.MessageFor(code)})
	if err != nil {
		p.log.Debug().Str("job_id", id).Str("code", string(domain.CodeOf(err))).Msg("failure not recorded")
	}
}

// CodeFor classifies a processing error for the job record.
func CodeFor(err error) domain.ErrorCode {
	var pe *ai.ProviderError
	if errors.As(err, &pe) {
		switch pe.Kind {
		case ai.KindQuotaExceeded:
			return domain.CodeRateLimitExceeded
		case ai.KindTimeout:
			return domain.CodeTimeout
		case ai.KindCanceled:
			return domain.CodeProcessing
		}
		return domain.CodeAIProvider
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.CodeTimeout
	case errors.Is(err, context.Canceled):
		return domain.CodeProcessing
	case errors.Is(err, domain.ErrAllProvidersUnavailable):
		return domain.CodeAIProvider
	case errors.Is(err, domain.ErrProcessing), errors.Is(err, domain.ErrUnknownKind):
		return domain.CodeProcessing
	}
	return domain.CodeUnknown
}
