package partition

import "fmt"

// Reason records which threshold closed a batch.
type Reason string

const (
	ReasonMemory Reason = "memory"
	ReasonReads  Reason = "reads"
	ReasonBases  Reason = "bases"
	ReasonLast   Reason = "last"
)

// Totals accumulates per-batch cost inputs over real reads.
type Totals struct {
	Reads    int64
	Bases    int64
	Overlaps int64
}

// Batch is an inclusive id range processed by one worker invocation.
type Batch struct {
	Index    int
	BeginID  int
	EndID    int
	Reads    int64
	Bases    int64
	Overlaps int64
	Memory   int64
	Reason   Reason
}

// Span returns the number of ids covered, including absent ones.
func (b Batch) Span() int {
	return b.EndID - b.BeginID + 1
}

// Label returns the zero-padded batch name used for artifact files.
func (b Batch) Label() string {
	return fmt.Sprintf("%04d", b.Index)
}

// Limits are the closing thresholds for a pass. Zero disables a threshold.
type Limits struct {
	MemoryBudget int64
	MaxReads     int64
	MaxBases     int64
}

// CheckTiling verifies that batches exactly tile [1, maxID].
func CheckTiling(batches []Batch, maxID int) error {
	if maxID < 1 {
		if len(batches) == 0 {
			return nil
		}
		return fmt.Errorf("expected no batches for max id %d, got %d", maxID, len(batches))
	}
	if len(batches) == 0 {
		return fmt.Errorf("no batches cover [1, %d]", maxID)
	}
	next := 1
	for i, b := range batches {
		if b.Index != i+1 {
			return fmt.Errorf("batch %d has index %d", i+1, b.Index)
		}
		if b.BeginID != next {
			return fmt.Errorf("batch %d begins at %d, expected %d", b.Index, b.BeginID, next)
		}
		if b.EndID < b.BeginID {
			return fmt.Errorf("batch %d is empty (%d-%d)", b.Index, b.BeginID, b.EndID)
		}
		next = b.EndID + 1
	}
	if next != maxID+1 {
		return fmt.Errorf("last batch ends at %d, expected %d", next-1, maxID)
	}
	return nil
}
