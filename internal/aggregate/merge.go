package aggregate

import (
	"context"
	"fmt"
	"os"
	"strings"

	"oea/internal/fileutil"
	"oea/internal/services"
	"oea/internal/staging"
)

// MergeDetection concatenates parts into dest, publishes dest, and then
// removes the parts. It returns the merged size in bytes.
func MergeDetection(ctx context.Context, stager staging.Stager, parts []string, dest string) (int64, error) {
	if len(parts) == 0 {
		return 0, services.Wrap(services.ErrAggregationFailure, "detection", "merge", "no batch outputs to merge", nil)
	}
	for _, part := range parts {
		if err := stager.Fetch(ctx, part); err != nil {
			return 0, services.Wrap(services.ErrAggregationFailure, "detection", "merge", "fetch "+part, err)
		}
	}

	tmp := dest + ".tmp"
	written, err := fileutil.ConcatFiles(tmp, parts)
	if err != nil {
		_ = os.Remove(tmp)
		return 0, services.Wrap(services.ErrAggregationFailure, "detection", "merge", "concatenate batch outputs", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return 0, services.Wrap(services.ErrAggregationFailure, "detection", "merge", "rename merged artifact", err)
	}
	if err := stager.Publish(ctx, dest); err != nil {
		return 0, services.Wrap(services.ErrAggregationFailure, "detection", "merge", "publish "+dest, err)
	}

	for _, part := range parts {
		if err := stager.Remove(ctx, part); err != nil {
			return written, services.Wrap(services.ErrAggregationFailure, "detection", "merge", "remove "+part, err)
		}
	}
	return written, nil
}

// WriteManifest writes one artifact path per line, in the given order, to
// dest and publishes it.
func WriteManifest(ctx context.Context, stager staging.Stager, parts []string, dest string) error {
	if len(parts) == 0 {
		return services.Wrap(services.ErrAggregationFailure, "adjustment", "manifest", "no batch outputs to list", nil)
	}
	var b strings.Builder
	for _, part := range parts {
		if strings.ContainsAny(part, "\n\r") {
			return services.Wrap(services.ErrAggregationFailure, "adjustment", "manifest", fmt.Sprintf("artifact path %q contains a newline", part), nil)
		}
		b.WriteString(part)
		b.WriteByte('\n')
	}
	if err := fileutil.WriteFileAtomic(dest, []byte(b.String()), 0o644); err != nil {
		return services.Wrap(services.ErrAggregationFailure, "adjustment", "manifest", "write "+dest, err)
	}
	if err := stager.Publish(ctx, dest); err != nil {
		return services.Wrap(services.ErrAggregationFailure, "adjustment", "manifest", "publish "+dest, err)
	}
	return nil
}

// ReadManifest returns the artifact paths listed in a manifest.
func ReadManifest(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var parts []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return parts, nil
}
