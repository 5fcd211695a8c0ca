package stage

import (
	"context"
	"time"

	"oea/internal/queue"
)

// StageStatus is the persisted view of one stage, or of the commit.
type StageStatus struct {
	Name      string
	State     State
	Phase     string
	Batches   int
	Budget    int64
	Jobs      map[queue.JobStatus]int
	Failures  int
	Error     string
	UpdatedAt time.Time
	// Configured reports whether the stage descriptor exists.
	Configured bool
}

// Report summarizes the workflow for status output.
type Report struct {
	Stages      []StageStatus
	Attempt     int
	MaxAttempts int
	Committed   bool
}

// Status reads the persisted workflow state without changing it.
func (c *Controller) Status(ctx context.Context) (Report, error) {
	report := Report{MaxAttempts: c.cfg.Workflow.MaxAttempts}
	attempt, err := c.store.Attempt(ctx)
	if err != nil {
		return report, err
	}
	report.Attempt = attempt
	if report.Committed, err = c.stager.Exists(ctx, c.cfg.MarkerPath()); err != nil {
		return report, err
	}

	names := make([]string, 0, len(Stages)+1)
	for _, s := range Stages {
		names = append(names, string(s))
	}
	names = append(names, commitRecord)

	for _, name := range names {
		status := StageStatus{Name: name, State: StateNotStarted}
		rec, err := c.store.GetStage(ctx, name)
		if err != nil {
			return report, err
		}
		if rec != nil {
			status.State = State(rec.State)
			status.Phase = rec.Phase
			status.Batches = rec.Batches
			status.Budget = rec.Budget
			status.Error = rec.ErrorMessage
			status.UpdatedAt = rec.UpdatedAt
		}
		if s, ok := ParseStage(name); ok {
			if status.Jobs, err = c.store.JobCounts(ctx, name); err != nil {
				return report, err
			}
			failures, err := c.store.ListFailures(ctx, name)
			if err != nil {
				return report, err
			}
			status.Failures = len(failures)
			if status.Configured, err = c.stager.Exists(ctx, c.layout.Descriptor(s)); err != nil {
				return report, err
			}
		}
		report.Stages = append(report.Stages, status)
	}
	return report, nil
}
