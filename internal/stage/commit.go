package stage

import (
	"context"
	"fmt"
	"time"

	"oea/internal/logging"
	"oea/internal/services"
)

// Commit loads the adjustment manifest into the overlap store. The commit
// marker is the only evidence of success and is created at most once.
func (c *Controller) Commit(ctx context.Context) (state State, err error) {
	phase := PhaseCommit
	ctx, logger, closer := c.phaseContext(ctx, "", phase)
	defer closer.Close()
	start := time.Now()
	defer func() {
		c.metrics.ObservePhase(string(phase), time.Since(start))
		if err != nil {
			c.recordError(ctx, commitRecord, phase, err)
		}
	}()

	done, reason, err := c.globallyDone(ctx)
	if err != nil {
		return "", err
	}
	if done {
		logger.Info("commit needs no work",
			logging.String("reason", reason),
			logging.String(logging.FieldEventType, "commit_short_circuit"),
		)
		return StateDone, c.setState(ctx, commitRecord, phase, StateDone, nil)
	}
	if !c.cfg.Adjustment.Enabled {
		logger.Info("adjustment disabled; nothing to commit",
			logging.String(logging.FieldEventType, "commit_skipped"),
		)
		return StateSkipped, c.setState(ctx, commitRecord, phase, StateSkipped, nil)
	}

	manifest := c.layout.Terminal(Adjustment)
	ok, err := c.stager.Exists(ctx, manifest)
	if err != nil {
		return "", fmt.Errorf("check adjustment manifest: %w", err)
	}
	if !ok {
		return "", services.Wrap(services.ErrValidation, commitRecord, "commit", "adjustment manifest "+manifest+" is missing", nil)
	}
	if err := c.settle(ctx, Adjustment); err != nil {
		return "", err
	}

	logger.Info("committing adjusted error rates",
		logging.String("manifest", manifest),
		logging.String("store", c.cfg.Paths.StoreDir),
		logging.String(logging.FieldEventType, "commit_start"),
	)
	if err := c.committer.Commit(ctx, manifest, c.cfg.Paths.StoreDir); err != nil {
		logging.ErrorWithContext(logger, "commit failed", "commit_failed",
			logging.Error(err),
			logging.String("log", c.layout.CommitLog()),
			logging.String(logging.FieldErrorHint, "inspect the commit log; the store was left uncommitted"),
		)
		return "", err
	}
	logger.Info("overlap store committed",
		logging.String("marker", c.cfg.MarkerPath()),
		logging.Duration("elapsed", time.Since(start)),
		logging.String(logging.FieldEventType, "commit_complete"),
	)
	return StateDone, c.setState(ctx, commitRecord, phase, StateDone, nil)
}
