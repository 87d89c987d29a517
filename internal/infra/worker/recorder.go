package worker

import (
	"context"
	"time"

	"ai-prompt-enhancer/internal/domain/model"
	"ai-prompt-enhancer/internal/domain/ports/repository"
	"ai-prompt-enhancer/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Recorder observes terminal jobs: it updates metrics and, when an archive is
// configured, writes a summary row through the archive pool.
type Recorder struct {
	archive repository.JobArchive
	pool    *Pool
	timeout time.Duration
	log     *zerolog.Logger
}

// NewRecorder accepts a nil archive, in which case only metrics are recorded.
func NewRecorder(archive repository.JobArchive, pool *Pool, log *zerolog.Logger) *Recorder {
	l := log.With().Str("component", "recorder").Logger()
	return &Recorder{archive: archive, pool: pool, timeout: 5 * time.Second, log: &l}
}

// Observe is registered with queue.OnTerminal.
func (r *Recorder) Observe(job model.Job) {
	code := ""
	if job.Error != nil {
		code = string(job.Error.Code)
	}
	metrics.IncAIJob(string(job.Status), code)

	if r.archive == nil || r.pool == nil {
		return
	}
	rec := model.RecordOf(job)
	err := r.pool.Submit(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		return r.archive.Save(ctx, rec)
	})
	if err != nil {
		r.log.Warn().Err(err).Str("job_id", job.ID).Msg("archive write dropped")
	}
}
