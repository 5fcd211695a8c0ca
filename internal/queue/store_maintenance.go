package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
)

var expectedTables = []string{"stages", "jobs", "counters", "failures"}

// CheckHealth reports whether the queue database is present, readable,
// complete and intact. Errors are also recorded in DatabaseHealth.Error
// so status output can show them.
func (s *Store) CheckHealth(ctx context.Context) (health DatabaseHealth, err error) {
	health.DBPath = s.path
	defer func() {
		if err != nil && health.Error == "" {
			health.Error = err.Error()
		}
	}()

	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return health, nil
	}
	if err != nil {
		return health, fmt.Errorf("stat queue database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true
	if s.db == nil {
		return health, errors.New("queue database connection unavailable")
	}

	ctx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return health, fmt.Errorf("ping queue database: %w", err)
	}
	health.DatabaseReadable = true

	present, err := s.tableNames(ctx)
	if err != nil {
		return health, err
	}
	for _, table := range expectedTables {
		if !present[table] {
			health.MissingTables = append(health.MissingTables, table)
		}
	}
	if health.SchemaVersion, err = s.userVersion(ctx); err != nil {
		return health, err
	}
	if present["jobs"] {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs").Scan(&health.TotalJobs); err != nil {
			return health, fmt.Errorf("count jobs: %w", err)
		}
	}

	var integrity string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")
	return health, nil
}

func (s *Store) tableNames(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()
	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names[name] = true
	}
	return names, rows.Err()
}

// Reset clears stage records, job records, counters, and failures in one
// transaction. Durable stage artifacts are left alone, so the next Check
// rebuilds job records from the descriptors.
func (s *Store) Reset(ctx context.Context) error {
	ctx = ensureContext(ctx)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"jobs", "stages", "counters", "failures"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}
