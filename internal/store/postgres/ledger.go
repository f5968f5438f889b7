package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/ankittk/usagi/internal/store"
	"github.com/ankittk/usagi/pkg/models"
	"github.com/jackc/pgx/v5"
)

func (s *Store) StartJob(ctx context.Context, j models.Job) error {
	if j.StartedAt.IsZero() {
		j.StartedAt = time.Now().UTC()
	}
	if j.Result == "" {
		j.Result = models.JobRunning
	}
	_, err := s.Pool.Exec(ctx, `
INSERT INTO jobs(job_id, source, project, workdir, result, detail, started_at)
VALUES($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (job_id) DO UPDATE SET result = EXCLUDED.result, started_at = EXCLUDED.started_at, finished_at = NULL`,
		j.JobID, j.Source, j.Project, j.Workdir, j.Result, j.Detail, j.StartedAt.Unix())
	return err
}

func (s *Store) FinishJob(ctx context.Context, jobID, result, detail string) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE jobs SET result = $1, detail = $2, finished_at = $3 WHERE job_id = $4`,
		result, detail, time.Now().UTC().Unix(), jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (models.Job, error) {
	row := s.Pool.QueryRow(ctx, `SELECT job_id, source, project, workdir, result, detail, started_at, finished_at FROM jobs WHERE job_id = $1`, jobID)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, store.ErrNotFound
	}
	return j, err
}

func (s *Store) ListJobs(ctx context.Context, limit int) ([]models.Job, error) {
	limit = store.Limit(limit, models.DefaultJobListLimit, models.DefaultJobListLimit)
	rows, err := s.Pool.Query(ctx, `SELECT job_id, source, project, workdir, result, detail, started_at, finished_at FROM jobs ORDER BY started_at DESC, job_id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanJob(r pgx.Row) (models.Job, error) {
	var j models.Job
	var startedAt int64
	var finishedAt *int64
	if err := r.Scan(&j.JobID, &j.Source, &j.Project, &j.Workdir, &j.Result, &j.Detail, &startedAt, &finishedAt); err != nil {
		return models.Job{}, err
	}
	j.StartedAt = time.Unix(startedAt, 0).UTC()
	if finishedAt != nil {
		t := time.Unix(*finishedAt, 0).UTC()
		j.FinishedAt = &t
	}
	return j, nil
}

func (s *Store) RecordBallot(ctx context.Context, b models.Ballot) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `INSERT INTO ballots(ballot_id, project, outcome, created_at) VALUES($1, $2, $3, $4)`,
		b.BallotID, b.Project, b.Outcome, b.CreatedAt.Unix()); err != nil {
		return err
	}
	for i, v := range b.Votes {
		if _, err := tx.Exec(ctx, `INSERT INTO votes(ballot_id, position, voter_id, decision, reason) VALUES($1, $2, $3, $4, $5)`,
			b.BallotID, i, v.VoterID, v.Decision, v.Reason); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) ListBallots(ctx context.Context, limit int) ([]models.Ballot, error) {
	limit = store.Limit(limit, models.DefaultBallotListMax, models.DefaultBallotListMax)
	rows, err := s.Pool.Query(ctx, `SELECT ballot_id, project, outcome, created_at FROM ballots ORDER BY created_at DESC, ballot_id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	out := []models.Ballot{}
	for rows.Next() {
		var b models.Ballot
		var createdAt int64
		if err := rows.Scan(&b.BallotID, &b.Project, &b.Outcome, &createdAt); err != nil {
			rows.Close()
			return nil, err
		}
		b.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		vrows, err := s.Pool.Query(ctx, `SELECT voter_id, decision, reason FROM votes WHERE ballot_id = $1 ORDER BY position ASC`, out[i].BallotID)
		if err != nil {
			return nil, err
		}
		votes, err := pgx.CollectRows(vrows, func(r pgx.CollectableRow) (models.Vote, error) {
			var v models.Vote
			err := r.Scan(&v.VoterID, &v.Decision, &v.Reason)
			return v, err
		})
		if err != nil {
			return nil, err
		}
		out[i].Votes = votes
	}
	return out, nil
}

func (s *Store) MergeDone(ctx context.Context, key string) (bool, error) {
	var result string
	err := s.Pool.QueryRow(ctx, `SELECT result FROM merges WHERE merge_key = $1`, key).Scan(&result)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return result != models.MergeFailed, nil
}

func (s *Store) RecordMerge(ctx context.Context, m models.Merge) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.Pool.Exec(ctx, `
INSERT INTO merges(merge_key, branch, result, detail, created_at) VALUES($1, $2, $3, $4, $5)
ON CONFLICT (merge_key) DO UPDATE SET branch = EXCLUDED.branch, result = EXCLUDED.result, detail = EXCLUDED.detail, created_at = EXCLUDED.created_at`,
		m.Key, m.Branch, m.Result, m.Detail, m.CreatedAt.Unix())
	return err
}

func (s *Store) ListMerges(ctx context.Context, limit int) ([]models.Merge, error) {
	limit = store.Limit(limit, models.DefaultJobListLimit, models.DefaultJobListLimit)
	rows, err := s.Pool.Query(ctx, `SELECT merge_key, branch, result, detail, created_at FROM merges ORDER BY created_at DESC, merge_key DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Merge{}
	for rows.Next() {
		var m models.Merge
		var createdAt int64
		if err := rows.Scan(&m.Key, &m.Branch, &m.Result, &m.Detail, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}
