package sched

import (
	"context"
	"time"

	"ai-prompt-enhancer/internal/domain/model"
	"ai-prompt-enhancer/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Sweeper is the part of the job store the expiry worker needs.
type Sweeper interface {
	SweepExpired() int
	Stats() model.QueueStats
}

// ExpiryWorker evicts expired jobs on a timer so memory is reclaimed even when
// no requests arrive. Request paths sweep opportunistically as well.
type ExpiryWorker struct {
	interval time.Duration
	store    Sweeper
	log      *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, store Sweeper, logger *zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	l := logger.With().Str("component", "expiry_worker").Logger()
	return &ExpiryWorker{interval: interval, store: store, log: &l}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *ExpiryWorker) tick() int {
	n := w.store.SweepExpired()
	metrics.SetPendingJobs(w.store.Stats().Pending)
	if n > 0 {
		w.log.Info().Int("count", n).Msg("expired jobs evicted")
	}
	return n
}
