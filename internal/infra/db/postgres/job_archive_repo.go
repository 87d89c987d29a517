package postgres

import (
	"context"
	"database/sql"
	"time"

	"ai-prompt-enhancer/internal/domain/model"
	"ai-prompt-enhancer/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.JobArchive = (*jobArchiveRepo)(nil)

const jobHistorySchema = `
CREATE TABLE IF NOT EXISTS job_history (
  id           TEXT PRIMARY KEY,
  kind         TEXT NOT NULL,
  status       TEXT NOT NULL,
  error_code   TEXT,
  provider     TEXT,
  created_at   TIMESTAMPTZ NOT NULL,
  started_at   TIMESTAMPTZ,
  completed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS job_history_completed_at_idx ON job_history (completed_at);`

type jobArchiveRepo struct {
	pool *pgxpool.Pool
}

func NewJobArchiveRepo(pool *pgxpool.Pool) *jobArchiveRepo {
	return &jobArchiveRepo{pool: pool}
}

// EnsureSchema creates the job_history table when missing.
func (r *jobArchiveRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, jobHistorySchema)
	return err
}

// Save upserts the record. A job can only finish once, so a conflict is a replay.
func (r *jobArchiveRepo) Save(ctx context.Context, rec model.JobRecord) error {
	const q = `
INSERT INTO job_history (id, kind, status, error_code, provider, created_at, started_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING;`

	_, err := r.pool.Exec(ctx, q,
		rec.ID, string(rec.Kind), string(rec.Status),
		nullString(rec.ErrorCode), nullString(rec.Provider),
		rec.CreatedAt, nullTime(rec.StartedAt), rec.CompletedAt)
	return err
}

// CountByStatus is used by tests and ad-hoc reporting.
func (r *jobArchiveRepo) CountByStatus(ctx context.Context, status model.JobStatus) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM job_history WHERE status = $1`, string(status)).Scan(&n)
	return n, err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
