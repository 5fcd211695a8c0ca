package staging

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"oea/internal/config"
)

// Stager moves artifacts across the durable boundary. Paths are local
// filesystem paths; backends map them to their own namespace.
type Stager interface {
	// Fetch makes path available locally, pulling it from durable storage if
	// needed. Missing artifacts yield an error matching fs.ErrNotExist.
	Fetch(ctx context.Context, path string) error
	// Publish makes the local file at path durable.
	Publish(ctx context.Context, path string) error
	// Exists reports whether path is present locally or durably.
	Exists(ctx context.Context, path string) (bool, error)
	// Remove deletes path locally and durably. Missing paths are not an error.
	Remove(ctx context.Context, path string) error
	Close() error
}

// New builds the Stager selected by cfg.Staging.Backend.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Stager, error) {
	switch cfg.Staging.Backend {
	case "gcs":
		return NewGCS(ctx, GCSOptions{
			Bucket:          cfg.Staging.Bucket,
			Prefix:          cfg.Staging.Prefix,
			CredentialsFile: cfg.Staging.CredentialsFile,
			Root:            cfg.Paths.WorkDir,
			Logger:          logger,
		})
	case "", "local":
		return NewLocal(cfg.Paths.WorkDir, cfg.Staging.MirrorDir, logger), nil
	default:
		return nil, fmt.Errorf("unsupported staging backend %q", cfg.Staging.Backend)
	}
}

// IsNotExist reports whether err means the artifact is absent everywhere.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func localExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		return !info.IsDir(), nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func removeLocal(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
