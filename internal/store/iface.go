package store

import (
	"context"
	"errors"

	"github.com/ankittk/usagi/pkg/models"
)

// ErrNotFound is returned when a job or ballot id does not exist.
var ErrNotFound = errors.New("not found")

// Ledger is the durable record of jobs, ballots and merges.
// Implementations: *sqlite.Store (SQLite) and *postgres.Store (PostgreSQL).
type Ledger interface {
	// Jobs
	StartJob(ctx context.Context, j models.Job) error
	FinishJob(ctx context.Context, jobID, result, detail string) error
	GetJob(ctx context.Context, jobID string) (models.Job, error)
	ListJobs(ctx context.Context, limit int) ([]models.Job, error)

	// Ballots
	RecordBallot(ctx context.Context, b models.Ballot) error
	ListBallots(ctx context.Context, limit int) ([]models.Ballot, error)

	// Merges. MergeDone reports whether key already reached a final result
	// (merged or skipped); failed attempts may be retried.
	MergeDone(ctx context.Context, key string) (bool, error)
	RecordMerge(ctx context.Context, m models.Merge) error
	ListMerges(ctx context.Context, limit int) ([]models.Merge, error)

	Close() error
}

// Limit clamps a list limit to [1, max], using def when n <= 0.
func Limit(n, def, max int) int {
	if n <= 0 {
		n = def
	}
	if n > max {
		n = max
	}
	return n
}
