package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"oea/internal/logging"
)

// CleanResult contains the outcome of a cleanup pass.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStaleAttempts removes fenced artifacts in dir whose token is not in
// accepted. These are outputs, temp files, and logs of superseded attempts,
// including late finishers that completed after a retry was issued.
// Files that do not follow the fenced naming scheme are left alone.
func CleanStaleAttempts(ctx context.Context, dir string, accepted map[string]struct{}, logger *slog.Logger) CleanResult {
	result := CleanResult{}

	dir = strings.TrimSpace(dir)
	if dir == "" {
		return result
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
		}
		return result
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: ctx.Err()})
			return result
		}
		if entry.IsDir() {
			continue
		}
		_, token, ok := ParseArtifactName(entry.Name())
		if !ok {
			continue
		}
		if _, keep := accepted[token]; keep {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			if logger != nil {
				logger.Warn("failed to remove stale attempt artifact",
					logging.String("path", path),
					logging.Error(err),
					logging.String(logging.FieldEventType, "attempt_cleanup_failed"),
					logging.String(logging.FieldErrorHint, "check work_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, path)
		if logger != nil {
			logger.Debug("removed stale attempt artifact",
				logging.String("path", path),
				logging.String(logging.FieldEventType, "attempt_cleanup"),
			)
		}
	}

	return result
}

// DirUsage returns the file count and total size below path.
func DirUsage(path string) (files int, size int64, err error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, 0, nil
	}
	err = filepath.Walk(path, func(_ string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil // best effort
		}
		if !info.IsDir() {
			files++
			size += info.Size()
		}
		return nil
	})
	if os.IsNotExist(err) {
		return 0, 0, nil
	}
	return files, size, err
}
