package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ReplaceJobs atomically swaps every job record of stage for jobs.
func (s *Store) ReplaceJobs(ctx context.Context, stage string, jobs []Job) error {
	ctx = ensureContext(ctx)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE stage = ?`, stage); err != nil {
			return err
		}
		now := timestamp()
		for _, job := range jobs {
			status := job.Status
			if status == "" {
				status = JobPending
			}
			if _, err := tx.ExecContext(
				ctx,
				`INSERT INTO jobs (
                    stage, batch_index, begin_id, end_id, status, token, handle,
                    output_path, log_path, attempts, error_message, created_at, updated_at
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				stage,
				job.BatchIndex,
				job.BeginID,
				job.EndID,
				status,
				job.Token,
				nullableString(job.Handle),
				nullableString(job.OutputPath),
				nullableString(job.LogPath),
				job.Attempts,
				nullableString(job.ErrorMessage),
				now,
				now,
			); err != nil {
				return fmt.Errorf("insert batch %d: %w", job.BatchIndex, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace %s jobs: %w", stage, err)
	}
	return nil
}

// ListJobs returns the job records of stage in batch order.
func (s *Store) ListJobs(ctx context.Context, stage string) ([]Job, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs WHERE stage = ? ORDER BY batch_index`,
		stage,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s jobs: %w", stage, err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// GetJob returns one job record, or nil when the batch has none.
func (s *Store) GetJob(ctx context.Context, stage string, batchIndex int) (*Job, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs WHERE stage = ? AND batch_index = ?`,
		stage,
		batchIndex,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s batch %d: %w", stage, batchIndex, err)
	}
	return job, nil
}

// UpdateJob persists the mutable fields of job.
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	res, err := s.exec(
		ctx,
		`UPDATE jobs SET status = ?, token = ?, handle = ?, output_path = ?, log_path = ?,
             attempts = ?, error_message = ?, updated_at = ?
         WHERE stage = ? AND batch_index = ?`,
		job.Status,
		job.Token,
		nullableString(job.Handle),
		nullableString(job.OutputPath),
		nullableString(job.LogPath),
		job.Attempts,
		nullableString(job.ErrorMessage),
		timestamp(),
		job.Stage,
		job.BatchIndex,
	)
	if err != nil {
		return fmt.Errorf("update %s batch %d: %w", job.Stage, job.BatchIndex, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update %s batch %d: no such job", job.Stage, job.BatchIndex)
	}
	return nil
}

// DeleteJobs removes every job record of stage.
func (s *Store) DeleteJobs(ctx context.Context, stage string) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM jobs WHERE stage = ?`, stage)
	if err != nil {
		return 0, fmt.Errorf("delete %s jobs: %w", stage, err)
	}
	return res.RowsAffected()
}

// JobCounts returns the number of jobs of stage grouped by status.
func (s *Store) JobCounts(ctx context.Context, stage string) (map[JobStatus]int, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT status, COUNT(1) FROM jobs WHERE stage = ? GROUP BY status`,
		stage,
	)
	if err != nil {
		return nil, fmt.Errorf("job counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
