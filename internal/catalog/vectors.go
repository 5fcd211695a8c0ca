package catalog

import (
	"fmt"

	"oea/internal/services"
)

// CostVectors holds per-read lengths and overlap counts indexed by read id.
// Index 0 is unused; ids run from 1 to MaxID.
type CostVectors struct {
	MaxID         int
	Lengths       []uint32
	Counts        []uint32
	TotalReads    int64
	TotalBases    int64
	TotalOverlaps int64

	seen []bool
}

// New allocates empty vectors for ids 1..maxID. Every id starts absent.
func New(maxID int) *CostVectors {
	if maxID < 0 {
		maxID = 0
	}
	return &CostVectors{
		MaxID:   maxID,
		Lengths: make([]uint32, maxID+1),
		Counts:  make([]uint32, maxID+1),
		seen:    make([]bool, maxID+1),
	}
}

// FromSlices builds vectors from already-materialized slices (index 0 ignored).
// Totals are computed immediately; call Validate to enforce non-empty data.
func FromSlices(lengths, counts []uint32) *CostVectors {
	maxID := len(lengths) - 1
	cv := New(maxID)
	for id := 1; id <= maxID; id++ {
		cv.SetLength(id, lengths[id])
		if id < len(counts) {
			cv.SetCount(id, counts[id])
		}
	}
	cv.recompute()
	return cv
}

// SetLength records the length of id. Out-of-range ids are ignored.
func (cv *CostVectors) SetLength(id int, length uint32) {
	if id < 1 || id > cv.MaxID {
		return
	}
	cv.Lengths[id] = length
	cv.seen[id] = true
}

// SetCount records the overlap count of id. Out-of-range ids are ignored.
func (cv *CostVectors) SetCount(id int, count uint32) {
	if id < 1 || id > cv.MaxID {
		return
	}
	cv.Counts[id] = count
}

// Loaded reports whether the length catalog mentioned id at all.
func (cv *CostVectors) Loaded(id int) bool {
	return id >= 1 && id <= cv.MaxID && cv.seen[id]
}

// Present reports whether id is a real read: loaded with a nonzero length.
func (cv *CostVectors) Present(id int) bool {
	return cv.Loaded(id) && cv.Lengths[id] > 0
}

// Length returns the length of id, or zero when it is not present.
func (cv *CostVectors) Length(id int) int64 {
	if !cv.Present(id) {
		return 0
	}
	return int64(cv.Lengths[id])
}

// Count returns the overlap count of id, or zero when it is not present.
func (cv *CostVectors) Count(id int) int64 {
	if !cv.Present(id) {
		return 0
	}
	return int64(cv.Counts[id])
}

func (cv *CostVectors) recompute() {
	cv.TotalReads, cv.TotalBases, cv.TotalOverlaps = 0, 0, 0
	for id := 1; id <= cv.MaxID; id++ {
		if !cv.Present(id) {
			continue
		}
		cv.TotalReads++
		cv.TotalBases += int64(cv.Lengths[id])
		cv.TotalOverlaps += int64(cv.Counts[id])
	}
}

// Validate fails with ErrDataUnavailable when either total is zero.
func (cv *CostVectors) Validate() error {
	if cv.TotalBases <= 0 || cv.TotalOverlaps <= 0 {
		return services.Wrap(
			services.ErrDataUnavailable, "catalog", "validate",
			fmt.Sprintf("no usable reads (bases=%d overlaps=%d, max id %d)", cv.TotalBases, cv.TotalOverlaps, cv.MaxID),
			nil,
		)
	}
	return nil
}
