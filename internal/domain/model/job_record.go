package model

import "time"

// JobRecord is the archived summary of a finished job. It never carries the
// payload, the result text or the client identity.
type JobRecord struct {
	ID          string
	Kind        JobKind
	Status      JobStatus
	ErrorCode   string
	Provider    string
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// RecordOf summarises a terminal job for the archive.
func RecordOf(j Job) JobRecord {
	rec := JobRecord{
		ID:          j.ID,
		Kind:        j.Kind,
		Status:      j.Status,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
	if j.Error != nil {
		rec.ErrorCode = string(j.Error.Code)
	}
	if j.Result != nil {
		rec.Provider = j.Result.ProviderUsed
	}
	return rec
}
