package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Counter returns the value of a named counter, zero when unset.
func (s *Store) Counter(ctx context.Context, name string) (int, error) {
	var value int
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT value FROM counters WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", name, err)
	}
	return value, nil
}

// IncrementCounter adds one to a named counter and returns the new value.
func (s *Store) IncrementCounter(ctx context.Context, name string) (int, error) {
	ctx = ensureContext(ctx)
	var value int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO counters (name, value, updated_at) VALUES (?, 1, ?)
             ON CONFLICT(name) DO UPDATE SET value = value + 1, updated_at = excluded.updated_at`,
			name,
			timestamp(),
		); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `SELECT value FROM counters WHERE name = ?`, name).Scan(&value)
	})
	if err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", name, err)
	}
	return value, nil
}

// SetCounter overwrites a named counter.
func (s *Store) SetCounter(ctx context.Context, name string, value int) error {
	if _, err := s.exec(
		ctx,
		`INSERT INTO counters (name, value, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name,
		value,
		timestamp(),
	); err != nil {
		return fmt.Errorf("set counter %s: %w", name, err)
	}
	return nil
}

// Attempt returns the shared attempt counter.
func (s *Store) Attempt(ctx context.Context) (int, error) {
	return s.Counter(ctx, AttemptCounter)
}

// IncrementAttempt consumes one attempt and returns the new count.
func (s *Store) IncrementAttempt(ctx context.Context) (int, error) {
	return s.IncrementCounter(ctx, AttemptCounter)
}

// ResetAttempt zeroes the shared attempt counter.
func (s *Store) ResetAttempt(ctx context.Context) error {
	return s.SetCounter(ctx, AttemptCounter, 0)
}

// RecordFailure appends a batch failure to the diagnostics log.
func (s *Store) RecordFailure(ctx context.Context, failure Failure) error {
	if _, err := s.exec(
		ctx,
		`INSERT INTO failures (stage, batch_index, begin_id, end_id, attempt, token, log_path, message, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		failure.Stage,
		failure.BatchIndex,
		failure.BeginID,
		failure.EndID,
		failure.Attempt,
		nullableString(failure.Token),
		nullableString(failure.LogPath),
		nullableString(failure.Message),
		timestamp(),
	); err != nil {
		return fmt.Errorf("record %s batch %d failure: %w", failure.Stage, failure.BatchIndex, err)
	}
	return nil
}

// ListFailures returns the failure log of stage, oldest first.
func (s *Store) ListFailures(ctx context.Context, stage string) ([]Failure, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+failureColumns+` FROM failures WHERE stage = ? ORDER BY id`,
		stage,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s failures: %w", stage, err)
	}
	defer rows.Close()

	var failures []Failure
	for rows.Next() {
		failure, err := scanFailure(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		failures = append(failures, *failure)
	}
	return failures, rows.Err()
}

// ClearFailures drops the failure log of stage.
func (s *Store) ClearFailures(ctx context.Context, stage string) error {
	if _, err := s.exec(ctx, `DELETE FROM failures WHERE stage = ?`, stage); err != nil {
		return fmt.Errorf("clear %s failures: %w", stage, err)
	}
	return nil
}
