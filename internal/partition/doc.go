// Package partition splits the read id space into memory-bounded batches.
//
// Partition makes one ascending pass over ids 1..maxID, accumulating reads,
// bases, and overlaps for real reads only, and closes a batch as soon as the
// stage's CostModel estimate reaches the memory budget, a read or base cap is
// hit, or the last id is reached. The resulting list always tiles [1, maxID]
// with contiguous, ascending, non-empty ranges.
//
// PartitionRefined adds the adjustment stage's adaptive loop: when a pass
// yields more than eight batches and at least two of them span fewer than
// 1024 ids, the budget is widened by 25% and the pass is redone.
//
// Report renders a diagnostic table of a partition; it is never parsed back.
package partition
