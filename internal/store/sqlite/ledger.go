package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ankittk/usagi/internal/store"
	"github.com/ankittk/usagi/pkg/models"
)

func (s *Store) StartJob(ctx context.Context, j models.Job) error {
	if j.StartedAt.IsZero() {
		j.StartedAt = time.Now().UTC()
	}
	if j.Result == "" {
		j.Result = models.JobRunning
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO jobs(job_id, source, project, workdir, result, detail, started_at)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(job_id) DO UPDATE SET result = excluded.result, started_at = excluded.started_at, finished_at = NULL`,
		j.JobID, j.Source, j.Project, j.Workdir, j.Result, j.Detail, j.StartedAt.Unix())
	return err
}

func (s *Store) FinishJob(ctx context.Context, jobID, result, detail string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE jobs SET result = ?, detail = ?, finished_at = ? WHERE job_id = ?`,
		result, detail, time.Now().UTC().Unix(), jobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (models.Job, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT job_id, source, project, workdir, result, detail, started_at, finished_at FROM jobs WHERE job_id = ?`, jobID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Job{}, store.ErrNotFound
	}
	return j, err
}

func (s *Store) ListJobs(ctx context.Context, limit int) ([]models.Job, error) {
	limit = store.Limit(limit, models.DefaultJobListLimit, models.DefaultJobListLimit)
	rows, err := s.DB.QueryContext(ctx, `SELECT job_id, source, project, workdir, result, detail, started_at, finished_at FROM jobs ORDER BY started_at DESC, job_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
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

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(r scanner) (models.Job, error) {
	var j models.Job
	var startedAt int64
	var finishedAt sql.NullInt64
	if err := r.Scan(&j.JobID, &j.Source, &j.Project, &j.Workdir, &j.Result, &j.Detail, &startedAt, &finishedAt); err != nil {
		return models.Job{}, err
	}
	j.StartedAt = time.Unix(startedAt, 0).UTC()
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0).UTC()
		j.FinishedAt = &t
	}
	return j, nil
}

func (s *Store) RecordBallot(ctx context.Context, b models.Ballot) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `INSERT INTO ballots(ballot_id, project, outcome, created_at) VALUES(?, ?, ?, ?)`,
		b.BallotID, b.Project, b.Outcome, b.CreatedAt.Unix()); err != nil {
		return err
	}
	for i, v := range b.Votes {
		if _, err := tx.ExecContext(ctx, `INSERT INTO votes(ballot_id, position, voter_id, decision, reason) VALUES(?, ?, ?, ?, ?)`,
			b.BallotID, i, v.VoterID, v.Decision, v.Reason); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListBallots(ctx context.Context, limit int) ([]models.Ballot, error) {
	limit = store.Limit(limit, models.DefaultBallotListMax, models.DefaultBallotListMax)
	rows, err := s.DB.QueryContext(ctx, `SELECT ballot_id, project, outcome, created_at FROM ballots ORDER BY created_at DESC, ballot_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	out := []models.Ballot{}
	for rows.Next() {
		var b models.Ballot
		var createdAt int64
		if err := rows.Scan(&b.BallotID, &b.Project, &b.Outcome, &createdAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		b.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()
	for i := range out {
		votes, err := s.votes(ctx, out[i].BallotID)
		if err != nil {
			return nil, err
		}
		out[i].Votes = votes
	}
	return out, nil
}

func (s *Store) votes(ctx context.Context, ballotID string) ([]models.Vote, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT voter_id, decision, reason FROM votes WHERE ballot_id = ? ORDER BY position ASC`, ballotID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := []models.Vote{}
	for rows.Next() {
		var v models.Vote
		if err := rows.Scan(&v.VoterID, &v.Decision, &v.Reason); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) MergeDone(ctx context.Context, key string) (bool, error) {
	var result string
	err := s.DB.QueryRowContext(ctx, `SELECT result FROM merges WHERE merge_key = ?`, key).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) {
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
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO merges(merge_key, branch, result, detail, created_at) VALUES(?, ?, ?, ?, ?)
ON CONFLICT(merge_key) DO UPDATE SET branch = excluded.branch, result = excluded.result, detail = excluded.detail, created_at = excluded.created_at`,
		m.Key, m.Branch, m.Result, m.Detail, m.CreatedAt.Unix())
	return err
}

func (s *Store) ListMerges(ctx context.Context, limit int) ([]models.Merge, error) {
	limit = store.Limit(limit, models.DefaultJobListLimit, models.DefaultJobListLimit)
	rows, err := s.DB.QueryContext(ctx, `SELECT merge_key, branch, result, detail, created_at FROM merges ORDER BY created_at DESC, merge_key DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
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
