package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetStage returns the persisted record for name, or nil when none exists.
func (s *Store) GetStage(ctx context.Context, name string) (*StageRecord, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT name, state, phase, batches, budget, error_message, updated_at FROM stages WHERE name = ?`,
		name,
	)
	rec, err := scanStage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stage %s: %w", name, err)
	}
	return rec, nil
}

// PutStage inserts or replaces the record for rec.Name.
func (s *Store) PutStage(ctx context.Context, rec StageRecord) error {
	if rec.Name == "" {
		return errors.New("stage name is required")
	}
	if _, err := s.exec(
		ctx,
		`INSERT INTO stages (name, state, phase, batches, budget, error_message, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(name) DO UPDATE SET
             state = excluded.state,
             phase = excluded.phase,
             batches = excluded.batches,
             budget = excluded.budget,
             error_message = excluded.error_message,
             updated_at = excluded.updated_at`,
		rec.Name,
		rec.State,
		nullableString(rec.Phase),
		rec.Batches,
		rec.Budget,
		nullableString(rec.ErrorMessage),
		timestamp(),
	); err != nil {
		return fmt.Errorf("put stage %s: %w", rec.Name, err)
	}
	return nil
}

// ListStages returns every persisted stage record ordered by name.
func (s *Store) ListStages(ctx context.Context) ([]StageRecord, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT name, state, phase, batches, budget, error_message, updated_at FROM stages ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	var records []StageRecord
	for rows.Next() {
		rec, err := scanStage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func scanStage(scanner rowScanner) (*StageRecord, error) {
	var (
		rec          StageRecord
		phase        sql.NullString
		errorMessage sql.NullString
		updatedRaw   sql.NullString
	)
	if err := scanner.Scan(&rec.Name, &rec.State, &phase, &rec.Batches, &rec.Budget, &errorMessage, &updatedRaw); err != nil {
		return nil, err
	}
	rec.Phase = phase.String
	rec.ErrorMessage = errorMessage.String
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		rec.UpdatedAt = updated
	}
	return &rec, nil
}
