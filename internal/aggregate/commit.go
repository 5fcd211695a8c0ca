package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"oea/internal/fileutil"
	"oea/internal/logging"
	"oea/internal/services"
	"oea/internal/staging"
)

var commandContext = exec.CommandContext

// StoreCommitter loads an adjustment manifest into the overlap store by
// running the commit worker. The worker is expected to create MarkerPath as
// its last act.
type StoreCommitter struct {
	Binary     string
	MarkerPath string
	// LogPath receives the worker's stdout and stderr.
	LogPath string
	Stager  staging.Stager
	Logger  *slog.Logger
}

// Commit runs "<binary> -S <storeDir> -L <manifest>". Any failure, including
// one publishing the marker, removes the marker the worker left behind so the
// store never looks committed.
func (c *StoreCommitter) Commit(ctx context.Context, manifest, storeDir string) error {
	logger := c.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "commit")

	if err := c.Stager.Fetch(ctx, manifest); err != nil {
		return services.Wrap(services.ErrAggregationFailure, "commit", "fetch manifest", manifest, err)
	}
	parts, err := ReadManifest(manifest)
	if err != nil {
		return services.Wrap(services.ErrAggregationFailure, "commit", "read manifest", manifest, err)
	}
	for _, part := range parts {
		if err := c.Stager.Fetch(ctx, part); err != nil {
			return services.Wrap(services.ErrAggregationFailure, "commit", "fetch artifact", part, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(c.LogPath), 0o755); err != nil {
		return services.Wrap(services.ErrAggregationFailure, "commit", "prepare log", c.LogPath, err)
	}
	logFile, err := os.Create(c.LogPath)
	if err != nil {
		return services.Wrap(services.ErrAggregationFailure, "commit", "open log", c.LogPath, err)
	}
	defer logFile.Close()

	logger.Info("loading adjusted error rates into overlap store",
		logging.String("store", storeDir),
		logging.String("manifest", manifest),
		logging.Int("artifacts", len(parts)),
	)
	start := time.Now()
	cmd := commandContext(ctx, c.Binary, "-S", storeDir, "-L", manifest) //nolint:gosec
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	runErr := cmd.Run()
	_ = logFile.Sync()

	if runErr != nil {
		c.rollback(ctx, logger)
		tail, _ := fileutil.TailFile(c.LogPath, 20)
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		logging.ErrorWithContext(logger, "overlap store commit failed", "commit_failed",
			logging.Int("exit_code", exitCode),
			logging.String("log", c.LogPath),
			logging.String(logging.FieldErrorHint, "inspect the commit log, then rerun commit"),
			logging.String(logging.FieldImpact, "overlap store left without adjusted error rates"),
		)
		return services.Wrap(services.ErrAggregationFailure, "commit", "load",
			fmt.Sprintf("exit %d (log %s): %s", exitCode, c.LogPath, tail), runErr)
	}

	if ok, err := fileExists(c.MarkerPath); err != nil || !ok {
		c.rollback(ctx, logger)
		return services.Wrap(services.ErrAggregationFailure, "commit", "verify",
			fmt.Sprintf("worker exited cleanly but marker %s is missing (log %s)", c.MarkerPath, c.LogPath), err)
	}
	if err := c.Stager.Publish(ctx, c.MarkerPath); err != nil {
		c.rollback(ctx, logger)
		return services.Wrap(services.ErrAggregationFailure, "commit", "publish marker", c.MarkerPath, err)
	}
	logger.Info("overlap store committed",
		logging.Duration("duration", time.Since(start)),
		logging.String("marker", c.MarkerPath),
	)
	return nil
}

func (c *StoreCommitter) rollback(ctx context.Context, logger *slog.Logger) {
	if err := c.Stager.Remove(ctx, c.MarkerPath); err != nil {
		logging.WarnWithContext(logger, "failed to remove partial commit marker", "commit_rollback_failed",
			logging.String("marker", c.MarkerPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "delete the marker by hand before rerunning"),
		)
	}
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		return !info.IsDir(), nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
