package partition

import "oea/internal/catalog"

const (
	mib = int64(1) << 20

	// DefaultWindowSize is the detection worker's internal read batch size.
	DefaultWindowSize = 100000
	// DefaultMaxReadLength bounds the adjustment worker's per-read scratch buffers.
	DefaultMaxReadLength = int64(2097151)

	detectionFixedOverhead = 64 * mib
	adjustmentMisc         = 32 * mib
	adjustmentExtra        = 64 * mib
)

// CostModel estimates the peak memory of one worker processing a batch.
type CostModel interface {
	Name() string
	Estimate(t Totals) int64
}

// DetectionModel is the memory model of the error detection worker.
//
//	12·bases + 33·reads + 12·overlaps + 2·maxWindowBases + fixed
type DetectionModel struct {
	MaxWindowBases int64
	FixedOverhead  int64
}

// NewDetectionModel computes the sliding-window pre-pass once for cv.
func NewDetectionModel(cv *catalog.CostVectors, window int) DetectionModel {
	return DetectionModel{
		MaxWindowBases: MaxWindowBases(cv, window),
		FixedOverhead:  detectionFixedOverhead,
	}
}

func (DetectionModel) Name() string { return "detection" }

func (m DetectionModel) Estimate(t Totals) int64 {
	return 12*t.Bases + 33*t.Reads + 12*t.Overlaps + 2*m.MaxWindowBases + m.FixedOverhead
}

// AdjustmentModel is the memory model of the overlap error adjustment worker.
// The whole merged detection artifact is charged to every batch.
//
//	bases + 0.33·8·correctionSize + 32·reads + 32·overlaps + fixed buffers
type AdjustmentModel struct {
	CorrectionSize int64
	SeqBuffers     int64
	WorkArea       int64
	Misc           int64
	Extra          int64
}

// NewAdjustmentModel sizes the fixed buffers for reads up to maxReadLength.
func NewAdjustmentModel(correctionSize, maxReadLength int64) AdjustmentModel {
	if maxReadLength <= 0 {
		maxReadLength = DefaultMaxReadLength
	}
	return AdjustmentModel{
		CorrectionSize: correctionSize,
		SeqBuffers:     4 * maxReadLength,
		WorkArea:       16 * maxReadLength,
		Misc:           adjustmentMisc,
		Extra:          adjustmentExtra,
	}
}

func (AdjustmentModel) Name() string { return "adjustment" }

func (m AdjustmentModel) Estimate(t Totals) int64 {
	corrections := int64(0.33 * 8 * float64(m.CorrectionSize))
	return t.Bases + corrections + 32*t.Reads + 32*t.Overlaps + m.SeqBuffers + m.WorkArea + m.Misc + m.Extra
}

// MaxWindowBases returns the largest sum of read lengths over any window of
// window consecutive ids. Absent reads contribute nothing.
func MaxWindowBases(cv *catalog.CostVectors, window int) int64 {
	if cv == nil || cv.MaxID < 1 {
		return 0
	}
	if window <= 0 {
		window = DefaultWindowSize
	}
	var sum, best int64
	for id := 1; id <= cv.MaxID; id++ {
		sum += cv.Length(id)
		if id > window {
			sum -= cv.Length(id - window)
		}
		if sum > best {
			best = sum
		}
	}
	return best
}
