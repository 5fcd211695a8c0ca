package stage

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"oea/internal/fileutil"
	"oea/internal/partition"
	"oea/internal/services"
	"oea/internal/staging"
)

// Descriptor is the durable job description written once per stage. Its
// existence marks the stage as configured; re-entry never re-partitions.
type Descriptor struct {
	Stage     string            `toml:"stage"`
	MaxID     int               `toml:"max_id"`
	Budget    int64             `toml:"memory_budget"`
	Rounds    int               `toml:"refinement_rounds"`
	CreatedAt time.Time         `toml:"created_at"`
	Batches   []DescriptorBatch `toml:"batch"`
}

// DescriptorBatch is one batch and the token of its first attempt.
type DescriptorBatch struct {
	Index    int    `toml:"index"`
	BeginID  int    `toml:"begin"`
	EndID    int    `toml:"end"`
	Reads    int64  `toml:"reads"`
	Bases    int64  `toml:"bases"`
	Overlaps int64  `toml:"overlaps"`
	Memory   int64  `toml:"memory"`
	Reason   string `toml:"reason"`
	Token    string `toml:"token"`
}

// PartitionBatches converts the descriptor back into partition batches.
func (d Descriptor) PartitionBatches() []partition.Batch {
	batches := make([]partition.Batch, 0, len(d.Batches))
	for _, b := range d.Batches {
		batches = append(batches, partition.Batch{
			Index:    b.Index,
			BeginID:  b.BeginID,
			EndID:    b.EndID,
			Reads:    b.Reads,
			Bases:    b.Bases,
			Overlaps: b.Overlaps,
			Memory:   b.Memory,
			Reason:   partition.Reason(b.Reason),
		})
	}
	return batches
}

func writeDescriptor(ctx context.Context, stager staging.Stager, path string, d Descriptor) error {
	data, err := toml.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write descriptor %s: %w", path, err)
	}
	if err := stager.Publish(ctx, path); err != nil {
		return fmt.Errorf("publish descriptor %s: %w", path, err)
	}
	return nil
}

func readDescriptor(ctx context.Context, stager staging.Stager, path string) (Descriptor, error) {
	var d Descriptor
	if err := stager.Fetch(ctx, path); err != nil {
		return d, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return d, err
	}
	if err := toml.Unmarshal(data, &d); err != nil {
		return d, services.Wrap(services.ErrValidation, d.Stage, "read descriptor", path, err)
	}
	if err := partition.CheckTiling(d.PartitionBatches(), d.MaxID); err != nil {
		return d, services.Wrap(services.ErrValidation, d.Stage, "read descriptor", path, err)
	}
	return d, nil
}
