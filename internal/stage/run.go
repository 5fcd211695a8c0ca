package stage

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"

	"oea/internal/logging"
)

// Step runs the next phase that still has work and reports its outcome.
func (c *Controller) Step(ctx context.Context) (Phase, State, error) {
	for _, s := range Stages {
		persisted, err := c.persistedState(ctx, string(s))
		if err != nil {
			return "", "", err
		}
		if persisted.Terminal() {
			continue
		}
		if persisted == StateNotStarted {
			state, err := c.Configure(ctx, s)
			return s.configurePhase(), state, err
		}
		state, err := c.Check(ctx, s)
		if err != nil || !state.Terminal() {
			return s.checkPhase(), state, err
		}
	}

	persisted, err := c.persistedState(ctx, commitRecord)
	if err != nil {
		return "", "", err
	}
	if persisted.Terminal() {
		return PhaseCommit, persisted, nil
	}
	state, err := c.Commit(ctx)
	return PhaseCommit, state, err
}

// Run steps through every phase until the commit finishes, sleeping poll
// between checks while batches are still running. A file lock in the work
// dir keeps a second orchestrator out.
func (c *Controller) Run(ctx context.Context, poll time.Duration) error {
	if err := os.MkdirAll(c.layout.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	lock := flock.New(c.layout.Lock())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire work dir lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another orchestrator holds %s", c.layout.Lock())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			c.logger.Warn("failed to release work dir lock", logging.Error(err))
		}
	}()

	for {
		phase, state, err := c.Step(ctx)
		c.exportMetrics()
		if err != nil {
			return err
		}
		c.logger.Debug("phase finished",
			logging.String(logging.FieldPhase, string(phase)),
			logging.String("state", string(state)),
		)
		if phase == PhaseCommit && state.Terminal() {
			return nil
		}
		if c.running == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

func (c *Controller) exportMetrics() {
	path := c.cfg.Metrics.Textfile
	if path == "" || c.metrics == nil {
		return
	}
	if err := c.metrics.WriteTextfile(path); err != nil {
		logging.WarnWithContext(c.logger, "metrics textfile not written", "metrics_export_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "scraped metrics are stale"),
		)
	}
}
