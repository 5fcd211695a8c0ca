package stage

import (
	"fmt"
	"strings"

	"oea/internal/services"
)

// BatchFailure describes one batch that never produced output.
type BatchFailure struct {
	Index   int
	BeginID int
	EndID   int
	LogPath string
	// Tail holds the last lines of the worker log.
	Tail string
}

// BatchFailureError is returned when batches are still missing output after
// the shared attempt budget is exhausted. It matches
// services.ErrBatchWorkerFailure.
type BatchFailureError struct {
	Stage    Stage
	Attempts int
	Failures []BatchFailure
}

func (e *BatchFailureError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d batch(es) failed after %d attempt(s)", services.ErrBatchWorkerFailure, len(e.Failures), e.Attempts)
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "\n  batch %04d [%d-%d] log %s", f.Index, f.BeginID, f.EndID, f.LogPath)
		if tail := strings.TrimSpace(f.Tail); tail != "" {
			fmt.Fprintf(&b, ": %s", strings.ReplaceAll(tail, "\n", " | "))
		}
	}
	return b.String()
}

func (e *BatchFailureError) Unwrap() error { return services.ErrBatchWorkerFailure }
