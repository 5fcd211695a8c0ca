package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"oea/internal/logging"
)

var commandContext = exec.CommandContext

// Outcome records how a local worker process ended.
type Outcome struct {
	ExitCode  int
	Published bool
	Duration  time.Duration
	Err       string
}

// Local runs workers as child processes of the orchestrator. Submit returns
// once every worker has exited, so Status always reports finished.
type Local struct {
	Concurrency int
	logger      *slog.Logger

	mu       sync.Mutex
	outcomes map[Handle]Outcome
}

// NewLocal returns a local submitter running at most concurrency workers.
func NewLocal(concurrency int, logger *slog.Logger) *Local {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Local{
		Concurrency: concurrency,
		logger:      logging.NewComponentLogger(logger, "submit"),
		outcomes:    make(map[Handle]Outcome),
	}
}

// Submit runs every spec and returns their handles in spec order. Worker
// failures are not errors here; they surface as missing outputs. Errors are
// returned only when the orchestrator itself cannot launch jobs.
func (l *Local) Submit(ctx context.Context, specs []JobSpec) ([]Handle, error) {
	handles := make([]Handle, len(specs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(l.Concurrency)

	for i, spec := range specs {
		handles[i] = NewHandle("local", spec)
		handle := handles[i]
		group.Go(func() error {
			outcome, err := l.run(groupCtx, spec)
			if err != nil {
				return err
			}
			l.mu.Lock()
			l.outcomes[handle] = outcome
			l.mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return handles, err
	}
	return handles, nil
}

// Status reports finished for every handle: local jobs complete inside Submit,
// and handles from an earlier process have no running child to wait for.
func (l *Local) Status(_ context.Context, _ Handle) (JobState, error) {
	return StateFinished, nil
}

// Outcome returns the recorded result of a handle submitted by this process.
func (l *Local) Outcome(handle Handle) (Outcome, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	outcome, ok := l.outcomes[handle]
	return outcome, ok
}

func (l *Local) run(ctx context.Context, spec JobSpec) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	for _, dir := range []string{filepath.Dir(spec.OutputPath), filepath.Dir(spec.LogPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Outcome{}, fmt.Errorf("prepare batch %d: %w", spec.BatchIndex, err)
		}
	}
	logFile, err := os.Create(spec.LogPath)
	if err != nil {
		return Outcome{}, fmt.Errorf("open batch %d log: %w", spec.BatchIndex, err)
	}
	defer logFile.Close()

	tmp := spec.TempPath()
	_ = os.Remove(tmp)

	logger := l.logger.With(
		logging.String(logging.FieldStage, spec.Stage),
		logging.Batch(spec.BatchIndex),
	)
	logger.Debug("starting worker",
		logging.String("binary", spec.Binary),
		logging.Strings("args", spec.CommandArgs()),
		logging.String("log", spec.LogPath),
	)

	start := time.Now()
	cmd := commandContext(ctx, spec.Binary, spec.CommandArgs()...) //nolint:gosec
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	runErr := cmd.Run()
	outcome := Outcome{Duration: time.Since(start)}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			outcome.ExitCode = exitErr.ExitCode()
		} else {
			outcome.ExitCode = -1
		}
		outcome.Err = runErr.Error()
		_ = os.Remove(tmp)
		logging.WarnWithContext(logger, "worker failed", "batch_worker_failed",
			logging.Int("exit_code", outcome.ExitCode),
			logging.Error(runErr),
			logging.String("log", spec.LogPath),
			logging.String(logging.FieldErrorHint, "inspect the batch log"),
			logging.String(logging.FieldImpact, "batch will be retried if attempts remain"),
		)
		if ctx.Err() != nil {
			return outcome, ctx.Err()
		}
		return outcome, nil
	}

	if err := os.Rename(tmp, spec.OutputPath); err != nil {
		outcome.Err = fmt.Sprintf("publish output: %v", err)
		logging.WarnWithContext(logger, "worker exited cleanly without output", "batch_output_missing",
			logging.Error(err),
			logging.String("expected", tmp),
			logging.String(logging.FieldErrorHint, "check the worker's -o handling"),
		)
		return outcome, nil
	}
	outcome.Published = true
	logger.Info("worker finished",
		logging.Duration("duration", outcome.Duration),
		logging.String("output", spec.OutputPath),
	)
	return outcome, nil
}
