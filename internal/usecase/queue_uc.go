// File: internal/usecase/queue_uc.go
package usecase

import (
	"context"
	"encoding/json"

	"ai-prompt-enhancer/internal/domain"
	"ai-prompt-enhancer/internal/domain/model"
	"ai-prompt-enhancer/internal/infra/logging"
	"ai-prompt-enhancer/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ QueueUseCase = (*queueUC)(nil)

type QueueUseCase interface {
	Submit(ctx context.Context, in SubmitInput) (*SubmitOutput, error)
	Status(ctx context.Context, clientID, jobID string) (*StatusOutput, error)
	Stats() model.QueueStats
}

// PayloadValidator turns a raw body into a sanitized payload.
type PayloadValidator interface {
	Validate(kind string, raw json.RawMessage) (model.Payload, error)
}

// JobStore is the subset of queue.Store used here.
type JobStore interface {
	Submit(clientID, requestID string, payload model.Payload) (string, int, error)
	Get(id string) (model.Job, bool)
	Position(id string) int
	EstimateWaitSeconds(id string) int
	Stats() model.QueueStats
}

// Advancer is the processor entry point triggered by inbound requests.
type Advancer interface {
	TryAdvance(ctx context.Context) bool
}

type SubmitInput struct {
	ClientID  string
	RequestID string
	Kind      string
	Payload   json.RawMessage
}

type SubmitOutput struct {
	JobID                string
	Position             int
	EstimatedWaitSeconds int
	Stats                model.QueueStats
}

type StatusOutput struct {
	Job                  model.Job
	Position             int
	EstimatedWaitSeconds int
	Stats                model.QueueStats
}

type queueUC struct {
	validator        PayloadValidator
	store            JobStore
	advancer         Advancer
	enforceOwnership bool
	log              *zerolog.Logger
}

func NewQueueUseCase(v PayloadValidator, store JobStore, adv Advancer, enforceOwnership bool, log *zerolog.Logger) *queueUC {
	l := log.With().Str("component", "queue_uc").Logger()
	return &queueUC{validator: v, store: store, advancer: adv, enforceOwnership: enforceOwnership, log: &l}
}

// Submit validates and enqueues. Position and ETA are taken before the
// opportunistic advance so the caller sees where the job entered the queue.
func (q *queueUC) Submit(ctx context.Context, in SubmitInput) (*SubmitOutput, error) {
	payload, err := q.validator.Validate(in.Kind, in.Payload)
	if err != nil {
		metrics.IncSubmissionRejected(string(domain.CodeOf(err)))
		return nil, err
	}

	id, pos, err := q.store.Submit(in.ClientID, in.RequestID, payload)
	if err != nil {
		metrics.IncSubmissionRejected(string(domain.CodeOf(err)))
		logging.With(ctx, q.log).Info().Str("code", string(domain.CodeOf(err))).Msg("submission rejected")
		return nil, err
	}
	out := &SubmitOutput{
		JobID:                id,
		Position:             pos,
		EstimatedWaitSeconds: q.store.EstimateWaitSeconds(id),
	}
	metrics.IncJobSubmitted(string(payload.Kind()))
	logging.With(ctx, q.log).Info().Str("job_id", id).Str("kind", string(payload.Kind())).Int("position", pos).Msg("job accepted")

	q.advancer.TryAdvance(ctx)
	out.Stats = q.store.Stats()
	metrics.SetPendingJobs(out.Stats.Pending)
	return out, nil
}

// Status advances the queue once, then reports on jobID. Jobs owned by another
// client are indistinguishable from unknown ones.
func (q *queueUC) Status(ctx context.Context, clientID, jobID string) (*StatusOutput, error) {
	q.advancer.TryAdvance(ctx)

	job, ok := q.store.Get(jobID)
	if !ok || (q.enforceOwnership && job.ClientID != clientID) {
		return nil, domain.ErrJobNotFound
	}
	out := &StatusOutput{Job: job, Stats: q.store.Stats()}
	if job.Status == model.JobStatusPending {
		out.Position = q.store.Position(jobID)
		out.EstimatedWaitSeconds = q.store.EstimateWaitSeconds(jobID)
	}
	return out, nil
}

func (q *queueUC) Stats() model.QueueStats {
	return q.store.Stats()
}
