package stage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"oea/internal/aggregate"
	"oea/internal/fileutil"
	"oea/internal/logging"
	"oea/internal/queue"
	"oea/internal/services"
	"oea/internal/staging"
	"oea/internal/submit"
)

const failureTailLines = 20

// Check inspects the dispatched batches of a stage. When every batch has
// output under its current token the stage is aggregated. Missing outputs
// are resubmitted with fresh tokens until the shared attempt budget runs out.
func (c *Controller) Check(ctx context.Context, s Stage) (state State, err error) {
	phase := s.checkPhase()
	ctx, logger, closer := c.phaseContext(ctx, s, phase)
	defer closer.Close()
	start := time.Now()
	defer func() {
		c.metrics.ObservePhase(string(phase), time.Since(start))
		if err != nil {
			c.recordError(ctx, string(s), phase, err)
		}
	}()
	c.running = 0

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

	jobs, err := c.loadJobs(ctx, s)
	if err != nil {
		return "", err
	}

	var undispatched []queue.Job
	for _, job := range jobs {
		if job.Status == queue.JobPending && job.Handle == "" {
			undispatched = append(undispatched, job)
		}
	}
	if len(undispatched) > 0 {
		// Configure stopped between recording and submitting these jobs.
		attempt, err := c.store.Attempt(ctx)
		if err != nil {
			return "", err
		}
		if attempt == 0 {
			if attempt, err = c.store.IncrementAttempt(ctx); err != nil {
				return "", err
			}
			c.metrics.Attempt(attempt)
		}
		logger.Info("dispatching batches that were never submitted",
			logging.Int("batches", len(undispatched)),
			logging.String(logging.FieldEventType, "batch_dispatch_resumed"),
		)
		if err := c.dispatch(ctx, s, undispatched); err != nil {
			return "", err
		}
		return StateAwaitingCompletion, c.setState(ctx, string(s), phase, StateAwaitingCompletion, nil)
	}

	for _, job := range jobs {
		if job.Status != queue.JobPending {
			continue
		}
		jobState, err := c.submitter.Status(ctx, submit.Handle(job.Handle))
		if err != nil {
			return "", services.Wrap(services.ErrExternalTool, string(s), "check", "query batch "+strconv.Itoa(job.BatchIndex), err)
		}
		if jobState == submit.StateRunning {
			c.running++
		}
	}
	if c.running > 0 {
		logger.Info("batches still running",
			logging.Int("running", c.running),
			logging.Int("batches", len(jobs)),
			logging.String(logging.FieldEventType, "batches_running"),
		)
		return StateAwaitingCompletion, c.setState(ctx, string(s), phase, StateAwaitingCompletion, nil)
	}

	var failed []queue.Job
	for i := range jobs {
		job := &jobs[i]
		ok, err := c.stager.Exists(ctx, job.OutputPath)
		if err != nil {
			return "", fmt.Errorf("check batch %d output: %w", job.BatchIndex, err)
		}
		if !ok {
			failed = append(failed, *job)
			continue
		}
		if job.Status != queue.JobSuccess {
			if err := c.publishOutput(ctx, job.OutputPath); err != nil {
				return "", services.Wrap(services.ErrExternalTool, string(s), "check", "publish batch output", err)
			}
			job.Status = queue.JobSuccess
			job.ErrorMessage = ""
			if err := c.store.UpdateJob(ctx, job); err != nil {
				return "", err
			}
		}
	}

	if len(failed) == 0 {
		return c.aggregate(ctx, s, jobs)
	}
	return c.retry(ctx, s, failed)
}

// loadJobs returns the job records of a stage, rebuilding them from the
// descriptor when the queue database lost them.
func (c *Controller) loadJobs(ctx context.Context, s Stage) ([]queue.Job, error) {
	jobs, err := c.store.ListJobs(ctx, string(s))
	if err != nil {
		return nil, err
	}
	if len(jobs) > 0 {
		return jobs, nil
	}
	descriptor, err := readDescriptor(ctx, c.stager, c.layout.Descriptor(s))
	if err != nil {
		if staging.IsNotExist(err) {
			return nil, services.Wrap(services.ErrValidation, string(s), "check", "stage has not been configured", nil)
		}
		return nil, err
	}
	jobs = c.jobsFromDescriptor(s, descriptor)
	for i := range jobs {
		// Outputs of the first attempt may already exist; anything else is
		// picked up by the retry path.
		jobs[i].Handle = fmt.Sprintf("rebuilt:%s/%04d/%s", s, jobs[i].BatchIndex, jobs[i].Token)
	}
	if err := c.store.ReplaceJobs(ctx, string(s), jobs); err != nil {
		return nil, err
	}
	c.logger.Info("rebuilt job records from descriptor",
		logging.String(logging.FieldStage, string(s)),
		logging.Int("batches", len(jobs)),
		logging.String(logging.FieldEventType, "jobs_rebuilt"),
	)
	return c.store.ListJobs(ctx, string(s))
}

func (c *Controller) retry(ctx context.Context, s Stage, failed []queue.Job) (State, error) {
	logger := logging.WithContext(ctx, c.logger)
	attempt, err := c.store.Attempt(ctx)
	if err != nil {
		return "", err
	}
	c.metrics.BatchFailures(string(s), len(failed))

	failures := make([]BatchFailure, 0, len(failed))
	for _, job := range failed {
		tail, tailErr := fileutil.TailFile(job.LogPath, failureTailLines)
		if tailErr != nil && !errors.Is(tailErr, os.ErrNotExist) {
			tail = "log unreadable: " + tailErr.Error()
		}
		failures = append(failures, BatchFailure{
			Index:   job.BatchIndex,
			BeginID: job.BeginID,
			EndID:   job.EndID,
			LogPath: job.LogPath,
			Tail:    tail,
		})
		if err := c.store.RecordFailure(ctx, queue.Failure{
			Stage:      string(s),
			BatchIndex: job.BatchIndex,
			BeginID:    job.BeginID,
			EndID:      job.EndID,
			Attempt:    attempt,
			Token:      job.Token,
			LogPath:    job.LogPath,
			Message:    tail,
		}); err != nil {
			return "", err
		}
		logging.WarnWithContext(logger, "batch produced no output", "batch_failed",
			logging.Batch(job.BatchIndex),
			logging.Int("begin", job.BeginID),
			logging.Int("end", job.EndID),
			logging.Int("attempt", attempt),
			logging.String("log", job.LogPath),
		)
	}

	if attempt >= c.cfg.Workflow.MaxAttempts {
		for _, job := range failed {
			job.Status = queue.JobFailed
			job.ErrorMessage = "no output after final attempt"
			if err := c.store.UpdateJob(ctx, &job); err != nil {
				return "", err
			}
		}
		failure := &BatchFailureError{Stage: s, Attempts: attempt, Failures: failures}
		logging.ErrorWithContext(logger, "stage failed", "stage_failed",
			logging.Int("failed_batches", len(failed)),
			logging.Int("attempts", attempt),
			logging.String(logging.FieldErrorHint, "inspect the batch logs, then reset the attempt counter to retry"),
		)
		return "", failure
	}

	next, err := c.store.IncrementAttempt(ctx)
	if err != nil {
		return "", err
	}
	c.metrics.Attempt(next)
	retries := make([]queue.Job, 0, len(failed))
	for _, job := range failed {
		job.Token = uuid.NewString()
		job.OutputPath = c.layout.Output(s, job.BatchIndex, job.Token)
		job.LogPath = c.layout.JobLog(s, job.BatchIndex, job.Token)
		job.Status = queue.JobPending
		job.Handle = ""
		job.ErrorMessage = fmt.Sprintf("retry after attempt %d", attempt)
		if err := c.store.UpdateJob(ctx, &job); err != nil {
			return "", err
		}
		retries = append(retries, job)
	}
	logger.Info("resubmitting failed batches",
		logging.Int("batches", len(retries)),
		logging.Int("attempt", next),
		logging.Int("max_attempts", c.cfg.Workflow.MaxAttempts),
		logging.String(logging.FieldEventType, "batch_retry"),
	)
	if err := c.setState(ctx, string(s), s.checkPhase(), StateAwaitingCompletion, nil); err != nil {
		return "", err
	}
	if err := c.dispatch(ctx, s, retries); err != nil {
		return "", err
	}
	return StateAwaitingCompletion, nil
}

func (c *Controller) aggregate(ctx context.Context, s Stage, jobs []queue.Job) (State, error) {
	logger := logging.WithContext(ctx, c.logger)
	phase := s.checkPhase()
	parts := make([]string, 0, len(jobs))
	accepted := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		parts = append(parts, job.OutputPath)
		accepted[job.Token] = struct{}{}
	}

	dest := c.layout.Terminal(s)
	if s == Adjustment {
		if err := aggregate.WriteManifest(ctx, c.stager, parts, dest); err != nil {
			return "", err
		}
		logger.Info("adjustment manifest written",
			logging.String("manifest", dest),
			logging.Int("batches", len(parts)),
			logging.String(logging.FieldEventType, "manifest_written"),
		)
	} else {
		written, err := aggregate.MergeDetection(ctx, c.stager, parts, dest)
		if err != nil {
			return "", err
		}
		c.metrics.Merged(string(s), written)
		logger.Info("detection outputs merged",
			logging.String("artifact", dest),
			logging.Int("batches", len(parts)),
			logging.Int64("bytes", written),
			logging.String(logging.FieldEventType, "outputs_merged"),
		)
	}
	if err := c.setState(ctx, string(s), phase, StateMerged, nil); err != nil {
		return "", err
	}

	for _, dir := range []string{c.layout.StageDir(s), c.layout.LogDir(s)} {
		result := staging.CleanStaleAttempts(ctx, dir, accepted, logger)
		if len(result.Removed) > 0 {
			logger.Info("removed superseded attempt files",
				logging.String("dir", dir),
				logging.Int("files", len(result.Removed)),
				logging.String(logging.FieldEventType, "attempt_cleanup"),
			)
		}
	}

	if err := c.settle(ctx, s); err != nil {
		return "", err
	}
	return StateDone, nil
}

// dispatch submits jobs and stores the returned handles.
func (c *Controller) dispatch(ctx context.Context, s Stage, jobs []queue.Job) error {
	args, err := c.sharedArgs(ctx, s)
	if err != nil {
		return err
	}
	binary := c.settings(s).binary
	specs := make([]submit.JobSpec, 0, len(jobs))
	for _, job := range jobs {
		specs = append(specs, submit.JobSpec{
			Stage:      string(s),
			BatchIndex: job.BatchIndex,
			Token:      job.Token,
			Binary:     binary,
			Args: append([]string{
				"-S", c.cfg.Paths.StoreDir,
				"-R", c.cfg.Paths.SeqStoreDir,
				"-b", strconv.Itoa(job.BeginID),
				"-e", strconv.Itoa(job.EndID),
			}, args...),
			OutputPath: job.OutputPath,
			LogPath:    job.LogPath,
		})
	}

	handles, submitErr := c.submitter.Submit(ctx, specs)
	for i, handle := range handles {
		if i >= len(jobs) || handle == "" {
			continue
		}
		job := jobs[i]
		job.Handle = string(handle)
		job.Attempts++
		if err := c.store.UpdateJob(ctx, &job); err != nil {
			return err
		}
	}
	if submitErr != nil {
		return services.Wrap(services.ErrExternalTool, string(s), "dispatch", "submit batches", submitErr)
	}
	c.metrics.BatchesDispatched(string(s), len(specs))
	logging.WithContext(ctx, c.logger).Info("batches dispatched",
		logging.Int("batches", len(specs)),
		logging.String("binary", binary),
		logging.String(logging.FieldEventType, "batches_dispatched"),
	)
	return nil
}

// sharedArgs are the worker flags common to every batch of a stage.
func (c *Controller) sharedArgs(ctx context.Context, s Stage) ([]string, error) {
	settings := c.settings(s)
	args := []string{
		"-erate", strconv.FormatFloat(settings.errorRate, 'f', -1, 64),
		"-minlen", strconv.Itoa(settings.minOverlap),
	}
	if s != Adjustment {
		return args, nil
	}
	corrections := c.layout.Terminal(Detection)
	ok, err := c.stager.Exists(ctx, corrections)
	if err != nil {
		return nil, fmt.Errorf("check detection artifact: %w", err)
	}
	if !ok {
		return args, nil
	}
	if err := c.stager.Fetch(ctx, corrections); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, string(s), "dispatch", "fetch detection artifact", err)
	}
	return append(args, "-c", corrections), nil
}

// publishOutput makes a locally written batch output durable. Outputs that
// only exist durably are left as they are.
func (c *Controller) publishOutput(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return c.stager.Publish(ctx, path)
}
