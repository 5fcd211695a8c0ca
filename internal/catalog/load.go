package catalog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"oea/internal/services"
)

// Kind selects one of the two catalog streams.
type Kind string

const (
	KindLengths  Kind = "lengths"
	KindOverlaps Kind = "overlaps"
)

// Source opens catalog streams. Close on the returned reader reports any
// failure of the producer (for example a dump utility exiting nonzero).
type Source interface {
	Open(ctx context.Context, kind Kind) (io.ReadCloser, error)
}

const maxLineBytes = 1 << 20

// Load streams both catalogs into vectors sized maxID+1 and validates the
// totals.
func Load(ctx context.Context, src Source, maxID int) (*CostVectors, error) {
	if maxID < 1 {
		return nil, services.Wrap(services.ErrDataUnavailable, "catalog", "load", fmt.Sprintf("invalid max id %d", maxID), nil)
	}
	cv := New(maxID)
	if err := stream(ctx, src, KindLengths, func(id int, value uint32) {
		cv.SetLength(id, value)
	}); err != nil {
		return nil, err
	}
	if err := stream(ctx, src, KindOverlaps, func(id int, value uint32) {
		cv.SetCount(id, value)
	}); err != nil {
		return nil, err
	}
	cv.recompute()
	if err := cv.Validate(); err != nil {
		return nil, err
	}
	return cv, nil
}

// ScanMaxID returns the largest id mentioned by the lengths catalog.
func ScanMaxID(ctx context.Context, src Source) (int, error) {
	maxID := 0
	if err := stream(ctx, src, KindLengths, func(id int, _ uint32) {
		if id > maxID {
			maxID = id
		}
	}); err != nil {
		return 0, err
	}
	if maxID == 0 {
		return 0, services.Wrap(services.ErrDataUnavailable, "catalog", "scan max id", "lengths catalog lists no reads", nil)
	}
	return maxID, nil
}

func stream(ctx context.Context, src Source, kind Kind, visit func(id int, value uint32)) error {
	if src == nil {
		return services.Wrap(services.ErrConfiguration, "catalog", "open", "no catalog source configured", nil)
	}
	rc, err := src.Open(ctx, kind)
	if err != nil {
		return services.Wrap(services.ErrDataUnavailable, "catalog", "open "+string(kind), "", err)
	}

	parseErr := parse(ctx, rc, visit)
	closeErr := rc.Close()
	if parseErr != nil {
		return services.Wrap(services.ErrDataUnavailable, "catalog", "read "+string(kind), "", parseErr)
	}
	if closeErr != nil {
		return services.Wrap(services.ErrDataUnavailable, "catalog", "close "+string(kind), "", closeErr)
	}
	return nil
}

// parse reads "id [ignored...] value" records. Blank lines and # comments
// are skipped.
func parse(ctx context.Context, r io.Reader, visit func(id int, value uint32)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo%65536 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return fmt.Errorf("line %d: expected id and value, got %q", lineNo, line)
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil || id < 0 {
			return fmt.Errorf("line %d: invalid id %q", lineNo, fields[0])
		}
		value, err := strconv.ParseUint(fields[len(fields)-1], 10, 32)
		if err != nil {
			return fmt.Errorf("line %d: invalid value %q", lineNo, fields[len(fields)-1])
		}
		visit(id, uint32(value))
	}
	return scanner.Err()
}
