// Package queue holds the in-memory job table and its FIFO pending index.
//
// All state is guarded by a single mutex. Every method is short and never
// blocks while holding it, so handlers, the processor and the optional
// background loop can share one Store.
package queue

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"ai-prompt-enhancer/internal/config"
	"ai-prompt-enhancer/internal/domain"
	"ai-prompt-enhancer/internal/domain/model"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// Limits bounds the queue. Zero values are not defaulted here; use LimitsFromConfig.
type Limits struct {
	MaxJobs           int
	ClientLimit       int
	ClientWindow      time.Duration
	JobTTL            time.Duration
	ProcessingTimeout time.Duration
	SweepInterval     time.Duration
	PerJobEstimate    time.Duration
}

func LimitsFromConfig(cfg config.QueueConfig) Limits {
	return Limits{
		MaxJobs:           cfg.MaxJobs,
		ClientLimit:       cfg.ClientLimit,
		ClientWindow:      cfg.ClientWindow,
		JobTTL:            cfg.JobTTL,
		ProcessingTimeout: cfg.ProcessingTimeout,
		SweepInterval:     cfg.SweepInterval,
		PerJobEstimate:    cfg.PerJobEstimate,
	}
}

type Option func(*Store)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// OnTerminal registers an observer invoked after every terminal transition,
// including staleness recovery. It runs outside the store lock.
func OnTerminal(fn func(model.Job)) Option {
	return func(s *Store) { s.observers = append(s.observers, fn) }
}

type Store struct {
	mu sync.Mutex

	limits   Limits
	jobs     map[string]*model.Job
	pending  []string // FIFO of pending job ids
	inFlight string

	// per-client submission times, independent of job status
	submissions map[string][]time.Time
	lastSweep   time.Time

	entropy   io.Reader
	now       func() time.Time
	observers []func(model.Job)
	log       *zerolog.Logger
}

func NewStore(limits Limits, log *zerolog.Logger, opts ...Option) *Store {
	l := log.With().Str("component", "queue").Logger()
	s := &Store{
		limits:      limits,
		jobs:        make(map[string]*model.Job),
		submissions: make(map[string][]time.Time),
		entropy:     ulid.Monotonic(rand.Reader, 0),
		now:         time.Now,
		log:         &l,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastSweep = s.now()
	return s
}

// Submit enqueues a validated payload for clientID and returns the new job id
// with its 1-based position.
func (s *Store) Submit(clientID, requestID string, payload model.Payload) (string, int, error) {
	if payload == nil {
		return "", 0, domain.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.maybeSweepLocked(now)

	if len(s.jobs) >= s.limits.MaxJobs {
		// expired entries waiting for the next sweep do not hold capacity
		s.sweepLocked(now)
		if len(s.jobs) >= s.limits.MaxJobs {
			return "", 0, domain.ErrQueueFull
		}
	}

	recent := pruneBefore(s.submissions[clientID], now.Add(-s.limits.ClientWindow))
	if len(recent) >= s.limits.ClientLimit {
		s.submissions[clientID] = recent
		return "", 0, domain.ErrClientLimitExceeded
	}
	s.submissions[clientID] = append(recent, now)

	id := ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
	s.jobs[id] = &model.Job{
		ID:        id,
		ClientID:  clientID,
		RequestID: requestID,
		Kind:      payload.Kind(),
		Payload:   payload,
		Status:    model.JobStatusPending,
		CreatedAt: now,
	}
	s.pending = append(s.pending, id)
	return id, s.positionLocked(id, now), nil
}

// Get returns a copy of the job. Expired jobs are reported as absent even
// before the sweep has removed them.
func (s *Store) Get(id string) (model.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || s.expired(j, s.now()) {
		return model.Job{}, false
	}
	return j.Clone(), true
}

// Position is the 1-based FIFO index of a pending job, 0 otherwise.
func (s *Store) Position(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked(id, s.now())
}

// EstimateWaitSeconds is position times the fixed per-job estimate.
func (s *Store) EstimateWaitSeconds(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked(id, s.now()) * int(s.limits.PerJobEstimate/time.Second)
}

// NextPending peeks at the head of the FIFO. A stale in-flight job is
// force-failed with TIMEOUT first, which frees the in-flight slot.
func (s *Store) NextPending() (model.Job, bool) {
	s.mu.Lock()
	now := s.now()
	recovered := s.recoverStaleLocked(now)
	s.maybeSweepLocked(now)

	var (
		head model.Job
		ok   bool
	)
	for _, id := range s.pending {
		if j := s.jobs[id]; j != nil && !s.expired(j, now) {
			head, ok = j.Clone(), true
			break
		}
	}
	s.mu.Unlock()

	s.notify(recovered)
	return head, ok
}

// MarkProcessing claims the in-flight slot for a pending job. It returns false
// without side effects when another job is in flight or the job is not pending.
func (s *Store) MarkProcessing(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight != "" {
		return false
	}
	now := s.now()
	j, ok := s.jobs[id]
	if !ok || j.Status != model.JobStatusPending || s.expired(j, now) {
		return false
	}
	s.removePendingLocked(id)
	j.Status = model.JobStatusProcessing
	j.StartedAt = now
	s.inFlight = id
	return true
}

func (s *Store) MarkCompleted(id string, res model.JobResult) error {
	return s.MarkTerminal(id, model.JobStatusCompleted, &res, nil)
}

func (s *Store) MarkFailed(id string, jobErr model.JobError) error {
	return s.MarkTerminal(id, model.JobStatusFailed, nil, &jobErr)
}

// MarkTerminal finishes a processing job. A result arriving after the job was
// timed out or expired is rejected.
func (s *Store) MarkTerminal(id string, status model.JobStatus, res *model.JobResult, jobErr *model.JobError) error {
	if !status.Terminal() {
		return domain.ErrInvalidTransition
	}
	if (res == nil) == (jobErr == nil) {
		return domain.ErrInvalidArgument
	}

	s.mu.Lock()
	now := s.now()
	j, ok := s.jobs[id]
	if !ok || s.expired(j, now) {
		s.mu.Unlock()
		return domain.ErrJobNotFound
	}
	if j.Status != model.JobStatusProcessing {
		s.mu.Unlock()
		return domain.ErrInvalidTransition
	}
	s.finishLocked(j, status, res, jobErr, now)
	done := j.Clone()
	s.mu.Unlock()

	s.notify([]model.Job{done})
	return nil
}

// SweepExpired removes every job older than the TTL regardless of status and
// returns how many were dropped.
func (s *Store) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now())
}

func (s *Store) Stats() model.QueueStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var st model.QueueStats
	for _, id := range s.pending {
		if j := s.jobs[id]; j != nil && !s.expired(j, now) {
			st.Pending++
		}
	}
	if j := s.jobs[s.inFlight]; j != nil && !s.expired(j, now) {
		st.Processing = 1
	}
	return st
}

// Busy reports whether a job holds the in-flight slot and is not yet stale.
func (s *Store) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight == "" {
		return false
	}
	j, ok := s.jobs[s.inFlight]
	return ok && !s.stale(j, s.now())
}

// positionLocked counts only live jobs, so entries past the TTL that the
// sweep has not reached yet do not push later jobs back.
func (s *Store) positionLocked(id string, now time.Time) int {
	pos := 0
	for _, pid := range s.pending {
		j := s.jobs[pid]
		if j == nil || s.expired(j, now) {
			if pid == id {
				return 0
			}
			continue
		}
		pos++
		if pid == id {
			return pos
		}
	}
	return 0
}

func (s *Store) removePendingLocked(id string) {
	for i, pid := range s.pending {
		if pid == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

func (s *Store) finishLocked(j *model.Job, status model.JobStatus, res *model.JobResult, jobErr *model.JobError, now time.Time) {
	j.Status = status
	j.Result = res
	j.Error = jobErr
	j.CompletedAt = now
	if s.inFlight == j.ID {
		s.inFlight = ""
	}
}

func (s *Store) recoverStaleLocked(now time.Time) []model.Job {
	if s.inFlight == "" {
		return nil
	}
	j, ok := s.jobs[s.inFlight]
	if !ok {
		s.inFlight = ""
		return nil
	}
	if !s.stale(j, now) {
		return nil
	}
	s.finishLocked(j, model.JobStatusFailed, nil, &model.JobError{
		Code:    domain.CodeTimeout,
		Message: domain.MessageFor(domain.CodeTimeout),
	}, now)
	s.log.Warn().Str("job_id", j.ID).Dur("held", now.Sub(j.StartedAt)).Msg("stale in-flight job timed out")
	return []model.Job{j.Clone()}
}

func (s *Store) maybeSweepLocked(now time.Time) {
	if now.Sub(s.lastSweep) < s.limits.SweepInterval {
		return
	}
	s.sweepLocked(now)
}

func (s *Store) sweepLocked(now time.Time) int {
	s.lastSweep = now
	removed := 0
	for id, j := range s.jobs {
		if !s.expired(j, now) {
			continue
		}
		delete(s.jobs, id)
		if j.Status == model.JobStatusPending {
			s.removePendingLocked(id)
		}
		if s.inFlight == id {
			s.inFlight = ""
		}
		removed++
	}

	cutoff := now.Add(-s.limits.ClientWindow)
	for client, ts := range s.submissions {
		if kept := pruneBefore(ts, cutoff); len(kept) == 0 {
			delete(s.submissions, client)
		} else {
			s.submissions[client] = kept
		}
	}

	if removed > 0 {
		s.log.Debug().Int("removed", removed).Int("remaining", len(s.jobs)).Msg("expired jobs swept")
	}
	return removed
}

func (s *Store) expired(j *model.Job, now time.Time) bool {
	return now.Sub(j.CreatedAt) > s.limits.JobTTL
}

func (s *Store) stale(j *model.Job, now time.Time) bool {
	return j.Status == model.JobStatusProcessing && now.Sub(j.StartedAt) > s.limits.ProcessingTimeout
}

func (s *Store) notify(jobs []model.Job) {
	for _, j := range jobs {
		for _, fn := range s.observers {
			fn(j)
		}
	}
}

// pruneBefore keeps the timestamps strictly after cutoff. ts is ascending.
func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append([]time.Time(nil), ts[i:]...)
}
