package stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"oea/internal/catalog"
	"oea/internal/config"
	"oea/internal/logging"
	"oea/internal/metrics"
	"oea/internal/queue"
	"oea/internal/services"
	"oea/internal/staging"
	"oea/internal/submit"
)

// Committer loads an adjustment manifest into the overlap store.
type Committer interface {
	Commit(ctx context.Context, manifest, storeDir string) error
}

// Options wires a Controller to its collaborators.
type Options struct {
	Config    *config.Config
	Store     *queue.Store
	Stager    staging.Stager
	Submitter submit.Submitter
	Committer Committer
	// Source feeds the metadata loader; nil builds one from Config.
	Source  catalog.Source
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Controller runs the workflow phases. It holds no state between calls
// beyond its collaborators; everything else is persisted.
type Controller struct {
	cfg       *config.Config
	store     *queue.Store
	stager    staging.Stager
	submitter submit.Submitter
	committer Committer
	source    catalog.Source
	metrics   *metrics.Metrics
	logger    *slog.Logger
	layout    Layout

	// running is the number of jobs the last Check saw still running.
	running int
}

// New validates opts and builds a Controller.
func New(opts Options) (*Controller, error) {
	switch {
	case opts.Config == nil:
		return nil, errors.New("stage controller requires a config")
	case opts.Store == nil:
		return nil, errors.New("stage controller requires a queue store")
	case opts.Stager == nil:
		return nil, errors.New("stage controller requires a stager")
	case opts.Submitter == nil:
		return nil, errors.New("stage controller requires a submitter")
	case opts.Committer == nil:
		return nil, errors.New("stage controller requires a committer")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Controller{
		cfg:       opts.Config,
		store:     opts.Store,
		stager:    opts.Stager,
		submitter: opts.Submitter,
		committer: opts.Committer,
		source:    opts.Source,
		metrics:   opts.Metrics,
		logger:    logging.NewComponentLogger(logger, "controller"),
		layout:    Layout{WorkDir: opts.Config.Paths.WorkDir},
	}, nil
}

// Layout exposes artifact locations for status output.
func (c *Controller) Layout() Layout { return c.layout }

type stageSettings struct {
	enabled    bool
	binary     string
	memoryGiB  float64
	maxReads   int64
	maxBases   int64
	errorRate  float64
	minOverlap int
}

func (c *Controller) settings(s Stage) stageSettings {
	if s == Adjustment {
		a := c.cfg.Adjustment
		return stageSettings{a.Enabled, a.Binary, a.MemoryGiB, a.MaxReads, a.MaxBases, a.ErrorRate, a.MinOverlapLength}
	}
	d := c.cfg.Detection
	return stageSettings{d.Enabled, d.Binary, d.MemoryGiB, d.MaxReads, d.MaxBases, d.ErrorRate, d.MinOverlapLength}
}

// guard applies the short-circuit checks shared by every phase of a stage.
// It returns a terminal state and true when no work remains.
func (c *Controller) guard(ctx context.Context, s Stage) (State, string, bool, error) {
	if !c.settings(s).enabled {
		return StateSkipped, "stage disabled", true, nil
	}
	if done, reason, err := c.globallyDone(ctx); err != nil || done {
		return StateDone, reason, done, err
	}
	ok, err := c.stager.Exists(ctx, c.layout.Terminal(s))
	if err != nil {
		return "", "", false, fmt.Errorf("check %s terminal artifact: %w", s, err)
	}
	if ok {
		if err := c.settle(ctx, s); err != nil {
			return "", "", false, err
		}
		return StateDone, "stage artifact exists", true, nil
	}
	return "", "", false, nil
}

// settle completes the post-merge bookkeeping of a stage whose terminal
// artifact exists: its job records are dropped, the attempt counter is
// reset unless a later stage already owns it, and the record is marked
// done. It is a no-op once that has happened.
func (c *Controller) settle(ctx context.Context, s Stage) error {
	persisted, err := c.persistedState(ctx, string(s))
	if err != nil {
		return err
	}
	jobs, err := c.store.ListJobs(ctx, string(s))
	if err != nil {
		return err
	}
	if persisted == StateDone && len(jobs) == 0 {
		return nil
	}
	claimed, err := c.laterStageConfigured(ctx, s)
	if err != nil {
		return err
	}
	if !claimed {
		if err := c.store.ResetAttempt(ctx); err != nil {
			return err
		}
		c.metrics.Attempt(0)
	}
	if _, err := c.store.DeleteJobs(ctx, string(s)); err != nil {
		return err
	}
	if err := c.setState(ctx, string(s), s.checkPhase(), StateDone, nil); err != nil {
		return err
	}
	logging.WithContext(ctx, c.logger).Info("completed bookkeeping for merged stage",
		logging.String(logging.FieldStage, string(s)),
		logging.String("previous_state", string(persisted)),
		logging.Int("stale_jobs", len(jobs)),
		logging.Bool("attempt_reset", !claimed),
		logging.String(logging.FieldEventType, "stage_settled"),
	)
	return nil
}

// settleIfMerged settles s when its terminal artifact is present.
func (c *Controller) settleIfMerged(ctx context.Context, s Stage) error {
	ok, err := c.stager.Exists(ctx, c.layout.Terminal(s))
	if err != nil {
		return fmt.Errorf("check %s terminal artifact: %w", s, err)
	}
	if !ok {
		return nil
	}
	return c.settle(ctx, s)
}

// laterStageConfigured reports whether a stage after s has written its
// descriptor and so counts attempts of its own.
func (c *Controller) laterStageConfigured(ctx context.Context, s Stage) (bool, error) {
	if s != Detection {
		return false, nil
	}
	ok, err := c.stager.Exists(ctx, c.layout.Descriptor(Adjustment))
	if err != nil {
		return false, fmt.Errorf("check %s descriptor: %w", Adjustment, err)
	}
	return ok, nil
}

// globallyDone reports whether the commit marker or a downstream artifact
// exists, which makes every phase a no-op.
func (c *Controller) globallyDone(ctx context.Context) (bool, string, error) {
	ok, err := c.stager.Exists(ctx, c.cfg.MarkerPath())
	if err != nil {
		return false, "", fmt.Errorf("check commit marker: %w", err)
	}
	if ok {
		return true, "overlap store already committed", nil
	}
	for _, artifact := range c.cfg.Paths.DownstreamArtifacts {
		ok, err := c.stager.Exists(ctx, artifact)
		if err != nil {
			return false, "", fmt.Errorf("check downstream artifact %s: %w", artifact, err)
		}
		if ok {
			return true, "downstream artifact " + artifact + " exists", nil
		}
	}
	return false, "", nil
}

// setState persists a stage record, keeping partition details unless update
// overrides them.
func (c *Controller) setState(ctx context.Context, name string, phase Phase, state State, update func(*queue.StageRecord)) error {
	rec, err := c.store.GetStage(ctx, name)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &queue.StageRecord{Name: name}
	}
	previous := rec.State
	rec.State = string(state)
	rec.Phase = string(phase)
	rec.ErrorMessage = ""
	if update != nil {
		update(rec)
	}
	if err := c.store.PutStage(ctx, *rec); err != nil {
		return err
	}
	if previous != rec.State {
		c.metrics.Transition(name, rec.State)
	}
	return nil
}

func (c *Controller) recordError(ctx context.Context, name string, phase Phase, cause error) {
	rec, err := c.store.GetStage(ctx, name)
	if err != nil || rec == nil {
		rec = &queue.StageRecord{Name: name, State: string(StateNotStarted)}
	}
	rec.Phase = string(phase)
	rec.ErrorMessage = services.Details(cause).Message
	if err := c.store.PutStage(ctx, *rec); err != nil {
		c.logger.Warn("failed to persist stage error", logging.String(logging.FieldStage, name), logging.Error(err))
	}
}

func (c *Controller) persistedState(ctx context.Context, name string) (State, error) {
	rec, err := c.store.GetStage(ctx, name)
	if err != nil {
		return "", err
	}
	if rec == nil || rec.State == "" {
		return StateNotStarted, nil
	}
	return State(rec.State), nil
}

// phaseContext decorates ctx and returns a logger that also writes to the
// stage's log file. The returned closer must be closed by the caller.
func (c *Controller) phaseContext(ctx context.Context, s Stage, phase Phase) (context.Context, *slog.Logger, io.Closer) {
	ctx = services.WithPhase(ctx, string(phase))
	if s != "" {
		ctx = services.WithStage(ctx, string(s))
	}
	logger := logging.WithContext(ctx, c.logger)
	if s == "" {
		return ctx, logger, io.NopCloser(nil)
	}
	fileLogger, closer, err := logging.NewFileLogger(c.layout.StageLog(s), c.cfg.Logging.Level)
	if err != nil {
		logger.Warn("stage log unavailable; logging to main output only",
			logging.Error(err),
			logging.String(logging.FieldEventType, "stage_log_unavailable"),
			logging.String(logging.FieldErrorHint, "check work_dir permissions"),
		)
		return ctx, logger, io.NopCloser(nil)
	}
	return ctx, logging.WithContext(ctx, logging.TeeLogger(c.logger, fileLogger.Handler())), closer
}
