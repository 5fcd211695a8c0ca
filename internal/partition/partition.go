package partition

import (
	"math"

	"oea/internal/catalog"
)

const (
	refineMaxBatches = 8
	refineSmallSpan  = 1024
	refineMinSmall   = 2
	refineGrowth     = 1.25
)

// Partition performs one greedy pass over ids 1..cv.MaxID.
func Partition(cv *catalog.CostVectors, model CostModel, limits Limits) []Batch {
	if cv == nil || cv.MaxID < 1 {
		return nil
	}
	var (
		batches []Batch
		totals  Totals
		begin   = 1
	)
	for id := 1; id <= cv.MaxID; id++ {
		if cv.Present(id) {
			totals.Reads++
			totals.Bases += cv.Length(id)
			totals.Overlaps += cv.Count(id)
		}
		memory := model.Estimate(totals)
		reason := closeReason(limits, totals, memory, id == cv.MaxID)
		if reason == "" {
			continue
		}
		batches = append(batches, Batch{
			Index:    len(batches) + 1,
			BeginID:  begin,
			EndID:    id,
			Reads:    totals.Reads,
			Bases:    totals.Bases,
			Overlaps: totals.Overlaps,
			Memory:   memory,
			Reason:   reason,
		})
		begin = id + 1
		totals = Totals{}
	}
	return batches
}

func closeReason(limits Limits, totals Totals, memory int64, last bool) Reason {
	switch {
	case limits.MemoryBudget > 0 && memory >= limits.MemoryBudget:
		return ReasonMemory
	case limits.MaxReads > 0 && totals.Reads >= limits.MaxReads:
		return ReasonReads
	case limits.MaxBases > 0 && totals.Bases >= limits.MaxBases:
		return ReasonBases
	case last:
		return ReasonLast
	default:
		return ""
	}
}

// Result is the outcome of a refined partition.
type Result struct {
	Batches []Batch
	// Budget is the memory budget of the final pass.
	Budget int64
	// Rounds counts how many times the budget was widened.
	Rounds int
}

// PartitionRefined partitions and then widens the memory budget by 25% per
// round while the partition has too many tiny batches. Widening stops once no
// batch closes on memory, since the budget no longer shapes the result.
func PartitionRefined(cv *catalog.CostVectors, model CostModel, limits Limits) Result {
	result := Result{Budget: limits.MemoryBudget}
	for {
		pass := limits
		pass.MemoryBudget = result.Budget
		result.Batches = Partition(cv, model, pass)

		if !NeedsRefinement(result.Batches) {
			return result
		}
		if result.Budget <= 0 || !closedBy(result.Batches, ReasonMemory) {
			return result
		}
		result.Budget = widen(result.Budget)
		result.Rounds++
	}
}

// NeedsRefinement reports whether a partition has more than eight batches
// with at least two spanning fewer than 1024 ids.
func NeedsRefinement(batches []Batch) bool {
	if len(batches) <= refineMaxBatches {
		return false
	}
	small := 0
	for _, b := range batches {
		if b.Span() < refineSmallSpan {
			small++
		}
	}
	return small >= refineMinSmall
}

func closedBy(batches []Batch, reason Reason) bool {
	for _, b := range batches {
		if b.Reason == reason {
			return true
		}
	}
	return false
}

func widen(budget int64) int64 {
	next := int64(math.Ceil(float64(budget) * refineGrowth))
	if next <= budget {
		next = budget + 1
	}
	return next
}

// Summary aggregates a partition for logs and status output.
type Summary struct {
	Batches      int
	Reads        int64
	Bases        int64
	Overlaps     int64
	MaxMemory    int64
	SmallBatches int
}

// Summarize totals a partition.
func Summarize(batches []Batch) Summary {
	s := Summary{Batches: len(batches)}
	for _, b := range batches {
		s.Reads += b.Reads
		s.Bases += b.Bases
		s.Overlaps += b.Overlaps
		if b.Memory > s.MaxMemory {
			s.MaxMemory = b.Memory
		}
		if b.Span() < refineSmallSpan {
			s.SmallBatches++
		}
	}
	return s
}

// GiB converts a budget expressed in GiB to bytes.
func GiB(value float64) int64 {
	if value <= 0 {
		return 0
	}
	return int64(value * float64(int64(1)<<30))
}
