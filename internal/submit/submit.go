package submit

import (
	"context"
	"fmt"
)

// TempSuffix is appended to a job's output path while the worker writes it.
const TempSuffix = ".tmp"

// JobSpec describes one worker invocation.
type JobSpec struct {
	Stage      string
	BatchIndex int
	Token      string
	Binary     string
	// Args excludes the output flag; the submitter appends "-o <OutputPath>.tmp".
	Args       []string
	OutputPath string
	LogPath    string
}

// TempPath returns where the worker writes before publication.
func (s JobSpec) TempPath() string {
	return s.OutputPath + TempSuffix
}

// CommandArgs returns the full worker argument list.
func (s JobSpec) CommandArgs() []string {
	args := make([]string, 0, len(s.Args)+2)
	args = append(args, s.Args...)
	return append(args, "-o", s.TempPath())
}

// Handle identifies a submitted job to its Submitter.
type Handle string

// NewHandle builds the handle of a job attempt.
func NewHandle(backend string, spec JobSpec) Handle {
	return Handle(fmt.Sprintf("%s:%s/%04d/%s", backend, spec.Stage, spec.BatchIndex, spec.Token))
}

// JobState is a submitter's view of a job.
type JobState string

const (
	StateRunning  JobState = "running"
	StateFinished JobState = "finished"
)

// Submitter starts workers and reports whether they are still running.
type Submitter interface {
	Submit(ctx context.Context, specs []JobSpec) ([]Handle, error)
	Status(ctx context.Context, handle Handle) (JobState, error)
}
