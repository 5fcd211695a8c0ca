package stage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"oea/internal/catalog"
	"oea/internal/fileutil"
	"oea/internal/logging"
	"oea/internal/partition"
	"oea/internal/queue"
	"oea/internal/services"
)

// Configure partitions a stage and dispatches every batch. It is a no-op
// returning the persisted state once the stage descriptor exists.
func (c *Controller) Configure(ctx context.Context, s Stage) (state State, err error) {
	phase := s.configurePhase()
	ctx, logger, closer := c.phaseContext(ctx, s, phase)
	defer closer.Close()
	start := time.Now()
	defer func() {
		c.metrics.ObservePhase(string(phase), time.Since(start))
		if err != nil {
			c.recordError(ctx, string(s), phase, err)
		}
	}()

	if terminal, reason, ok, err := c.guard(ctx, s); err != nil {
		return "", err
	} else if ok {
		logger.Info("stage needs no work",
			logging.String("state", string(terminal)),
			logging.String("reason", reason),
			logging.String(logging.FieldEventType, "stage_short_circuit"),
		)
		return terminal, c.setState(ctx, string(s), phase, terminal, nil)
	}

	if s == Adjustment {
		if err := c.settleIfMerged(ctx, Detection); err != nil {
			return "", err
		}
	}

	configured, err := c.stager.Exists(ctx, c.layout.Descriptor(s))
	if err != nil {
		return "", fmt.Errorf("check %s descriptor: %w", s, err)
	}
	if configured {
		persisted, err := c.persistedState(ctx, string(s))
		if err != nil {
			return "", err
		}
		if persisted == StateNotStarted {
			persisted = StateEmitted
			if err := c.setState(ctx, string(s), phase, persisted, nil); err != nil {
				return "", err
			}
		}
		logger.Info("stage already configured",
			logging.String("state", string(persisted)),
			logging.String(logging.FieldEventType, "stage_configured_previously"),
		)
		return persisted, nil
	}

	plan, err := c.Plan(ctx, s)
	if err != nil {
		return "", err
	}
	summary := partition.Summarize(plan.Batches)
	c.metrics.Partition(string(s), summary.Batches, summary.MaxMemory)
	logger.Info("stage partitioned",
		logging.Int("batches", summary.Batches),
		logging.Int64("reads", summary.Reads),
		logging.Int64("bases", summary.Bases),
		logging.Int64("overlaps", summary.Overlaps),
		logging.Int64("peak_memory", summary.MaxMemory),
		logging.Int64("memory_budget", plan.Budget),
		logging.Int("refinement_rounds", plan.Rounds),
		logging.String(logging.FieldEventType, "stage_partitioned"),
	)
	if plan.Budget > 0 && summary.MaxMemory > plan.Budget {
		logging.WarnWithContext(logger, "batch estimate exceeds memory budget", "budget_exceeded",
			logging.Int64("peak_memory", summary.MaxMemory),
			logging.Int64("memory_budget", plan.Budget),
			logging.String(logging.FieldImpact, "a single read outweighs the budget; its batch may exhaust worker memory"),
			logging.String(logging.FieldErrorHint, fmt.Sprintf("raise %s.memory_gib", s)),
		)
	}
	if err := os.MkdirAll(c.layout.LogDir(s), 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, string(s), "configure", "create stage directory", err)
	}
	if err := c.writeReport(s, plan.Batches); err != nil {
		logging.WarnWithContext(logger, "partition report not written", "partition_report_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "diagnostics only; dispatch continues"),
		)
	}

	descriptor := Descriptor{
		Stage:     string(s),
		MaxID:     plan.MaxID,
		Budget:    plan.Budget,
		Rounds:    plan.Rounds,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	for _, b := range plan.Batches {
		descriptor.Batches = append(descriptor.Batches, DescriptorBatch{
			Index:    b.Index,
			BeginID:  b.BeginID,
			EndID:    b.EndID,
			Reads:    b.Reads,
			Bases:    b.Bases,
			Overlaps: b.Overlaps,
			Memory:   b.Memory,
			Reason:   string(b.Reason),
			Token:    uuid.NewString(),
		})
	}
	if err := writeDescriptor(ctx, c.stager, c.layout.Descriptor(s), descriptor); err != nil {
		return "", services.Wrap(services.ErrExternalTool, string(s), "configure", "persist descriptor", err)
	}

	jobs := c.jobsFromDescriptor(s, descriptor)
	if err := c.store.ReplaceJobs(ctx, string(s), jobs); err != nil {
		return "", err
	}
	attempt, err := c.store.IncrementAttempt(ctx)
	if err != nil {
		return "", err
	}
	c.metrics.Attempt(attempt)
	if err := c.setState(ctx, string(s), phase, StateEmitted, func(rec *queue.StageRecord) {
		rec.Batches = len(plan.Batches)
		rec.Budget = plan.Budget
	}); err != nil {
		return "", err
	}

	jobs, err = c.store.ListJobs(ctx, string(s))
	if err != nil {
		return "", err
	}
	if err := c.dispatch(ctx, s, jobs); err != nil {
		return "", err
	}
	return StateEmitted, nil
}

// Plan is a computed partition for a stage.
type Plan struct {
	partition.Result
	MaxID int
}

// Plan loads the catalog and partitions it for s without dispatching
// anything.
func (c *Controller) Plan(ctx context.Context, s Stage) (Plan, error) {
	src := c.source
	if src == nil {
		var err error
		if src, err = NewSource(ctx, c.cfg, c.stager); err != nil {
			return Plan{}, err
		}
	}
	maxID := c.cfg.Catalog.MaxID
	if maxID <= 0 {
		var err error
		if maxID, err = catalog.ScanMaxID(ctx, src); err != nil {
			return Plan{}, err
		}
	}
	cv, err := catalog.Load(ctx, src, maxID)
	if err != nil {
		return Plan{}, err
	}
	return c.PlanFor(ctx, s, cv)
}

// PlanFor partitions cv with the stage's cost model and limits.
func (c *Controller) PlanFor(ctx context.Context, s Stage, cv *catalog.CostVectors) (Plan, error) {
	settings := c.settings(s)
	limits := partition.Limits{
		MemoryBudget: partition.GiB(settings.memoryGiB),
		MaxReads:     settings.maxReads,
		MaxBases:     settings.maxBases,
	}
	plan := Plan{MaxID: cv.MaxID}
	if s == Adjustment {
		correctionSize, err := c.correctionSize(ctx)
		if err != nil {
			return Plan{}, err
		}
		model := partition.NewAdjustmentModel(correctionSize, c.cfg.Adjustment.MaxReadLength)
		plan.Result = partition.PartitionRefined(cv, model, limits)
	} else {
		model := partition.NewDetectionModel(cv, c.cfg.Detection.WindowSize)
		plan.Result = partition.Result{
			Batches: partition.Partition(cv, model, limits),
			Budget:  limits.MemoryBudget,
		}
	}
	if len(plan.Batches) == 0 {
		return Plan{}, services.Wrap(services.ErrDataUnavailable, string(s), "partition", "no batches produced", nil)
	}
	if err := partition.CheckTiling(plan.Batches, cv.MaxID); err != nil {
		return Plan{}, services.Wrap(services.ErrValidation, string(s), "partition", "batches do not tile the id range", err)
	}
	return plan, nil
}

// correctionSize is the byte size of the merged detection output, which the
// adjustment workers load whole. With detection disabled and no artifact on
// hand it is zero.
func (c *Controller) correctionSize(ctx context.Context) (int64, error) {
	path := c.layout.Terminal(Detection)
	ok, err := c.stager.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("check detection artifact: %w", err)
	}
	if !ok {
		if c.cfg.Detection.Enabled {
			return 0, services.Wrap(services.ErrValidation, string(Adjustment), "configure", "detection artifact "+path+" is missing", nil)
		}
		return 0, nil
	}
	if err := c.stager.Fetch(ctx, path); err != nil {
		return 0, fmt.Errorf("fetch detection artifact: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat detection artifact: %w", err)
	}
	return info.Size(), nil
}

func (c *Controller) writeReport(s Stage, batches []partition.Batch) error {
	var buf bytes.Buffer
	if err := partition.Report(&buf, batches, partition.ReportOptions{
		Title: fmt.Sprintf("%s partition", s),
		Plain: true,
	}); err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(c.layout.Report(s), buf.Bytes(), 0o644)
}

func (c *Controller) jobsFromDescriptor(s Stage, d Descriptor) []queue.Job {
	jobs := make([]queue.Job, 0, len(d.Batches))
	for _, b := range d.Batches {
		jobs = append(jobs, queue.Job{
			Stage:      string(s),
			BatchIndex: b.Index,
			BeginID:    b.BeginID,
			EndID:      b.EndID,
			Status:     queue.JobPending,
			Token:      b.Token,
			OutputPath: c.layout.Output(s, b.Index, b.Token),
			LogPath:    c.layout.JobLog(s, b.Index, b.Token),
		})
	}
	return jobs
}
