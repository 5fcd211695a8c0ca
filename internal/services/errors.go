package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDataUnavailable marks an empty or unreadable catalog. Fatal.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrBatchWorkerFailure marks batches whose expected output is missing
	// after the shared attempt budget ran out. Fatal for the whole run.
	ErrBatchWorkerFailure = errors.New("batch worker failure")
	// ErrAggregationFailure marks a failed merge or overlap store commit. Fatal.
	ErrAggregationFailure = errors.New("aggregation failure")
	ErrExternalTool       = errors.New("external tool error")
	ErrValidation         = errors.New("validation error")
	ErrConfiguration      = errors.New("configuration error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorDetails summarizes an error for status output.
type ErrorDetails struct {
	Kind    string
	Message string
	Fatal   bool
}

// Details classifies err against the known markers. Every marker except
// ErrExternalTool is fatal for the run; external tool errors are retried by
// the stage controller when they happen inside a batch.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Message: strings.TrimSpace(err.Error()), Fatal: true}
	switch {
	case errors.Is(err, ErrDataUnavailable):
		details.Kind = "data_unavailable"
	case errors.Is(err, ErrBatchWorkerFailure):
		details.Kind = "batch_worker_failure"
	case errors.Is(err, ErrAggregationFailure):
		details.Kind = "aggregation_failure"
	case errors.Is(err, ErrConfiguration):
		details.Kind = "configuration"
	case errors.Is(err, ErrValidation):
		details.Kind = "validation"
	case errors.Is(err, ErrExternalTool):
		details.Kind = "external_tool"
		details.Fatal = false
	default:
		details.Kind = "unknown"
	}
	return details
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
