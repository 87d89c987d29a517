package model

import (
	"time"

	"ai-prompt-enhancer/internal/domain"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

type JobKind string

const (
	JobKindPrompt JobKind = "prompt"
	JobKindEmail  JobKind = "email"
)

// ParseJobKind accepts the wire names of the supported kinds.
func ParseJobKind(s string) (JobKind, error) {
	switch JobKind(s) {
	case JobKindPrompt, JobKindEmail:
		return JobKind(s), nil
	}
	return "", domain.ErrUnknownKind
}

// JobResult is the output of a completed job.
type JobResult struct {
	Content      string `json:"content"`
	ProviderUsed string `json:"providerUsed"`
}

// JobError is the classified failure of a failed job.
type JobError struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// Job is one unit of queued enhancement work. Result and Error are mutually
// exclusive and only set on a terminal transition.
type Job struct {
	ID        string
	ClientID  string
	RequestID string
	Kind      JobKind
	Payload   Payload
	Status    JobStatus

	Result *JobResult
	Error  *JobError

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// Clone returns a deep copy so callers cannot mutate store-owned state.
func (j *Job) Clone() Job {
	cp := *j
	if j.Result != nil {
		r := *j.Result
		cp.Result = &r
	}
	if j.Error != nil {
		e := *j.Error
		cp.Error = &e
	}
	if j.Payload != nil {
		cp.Payload = j.Payload.clonePayload()
	}
	return cp
}

// QueueStats is the snapshot returned with every queue response.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
}
