package repository

import (
	"context"

	"ai-prompt-enhancer/internal/domain/model"
)

// JobArchive stores summaries of finished jobs. Implementations are best effort;
// the queue never depends on a write succeeding.
type JobArchive interface {
	Save(ctx context.Context, rec model.JobRecord) error
}
