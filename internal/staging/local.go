package staging

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"oea/internal/fileutil"
	"oea/internal/logging"
)

// Local keeps artifacts on the filesystem. When MirrorDir is set, every
// published artifact is copied there (with size and hash verification) and
// Fetch restores missing local files from the mirror.
type Local struct {
	Root      string
	MirrorDir string
	logger    *slog.Logger
}

// NewLocal returns a filesystem stager rooted at root.
func NewLocal(root, mirrorDir string, logger *slog.Logger) *Local {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Local{
		Root:      root,
		MirrorDir: strings.TrimSpace(mirrorDir),
		logger:    logging.NewComponentLogger(logger, "staging"),
	}
}

func (l *Local) Fetch(_ context.Context, path string) error {
	ok, err := localExists(path)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	mirror := l.mirrorPath(path)
	if mirror == "" {
		return fmt.Errorf("fetch %s: %w", path, fs.ErrNotExist)
	}
	if ok, err := localExists(mirror); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("fetch %s: %w", path, fs.ErrNotExist)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	if err := fileutil.CopyFileVerified(mirror, path); err != nil {
		return fmt.Errorf("restore %s from mirror: %w", path, err)
	}
	l.logger.Debug("restored artifact from mirror",
		logging.String("path", path),
		logging.String("mirror", mirror),
	)
	return nil
}

func (l *Local) Publish(_ context.Context, path string) error {
	ok, err := localExists(path)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("publish %s: %w", path, fs.ErrNotExist)
	}
	mirror := l.mirrorPath(path)
	if mirror == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(mirror), 0o755); err != nil {
		return fmt.Errorf("publish %s: %w", path, err)
	}
	if err := fileutil.CopyFileVerified(path, mirror); err != nil {
		return fmt.Errorf("mirror %s: %w", path, err)
	}
	return nil
}

func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	ok, err := localExists(path)
	if err != nil || ok {
		return ok, err
	}
	if mirror := l.mirrorPath(path); mirror != "" {
		return localExists(mirror)
	}
	return false, nil
}

func (l *Local) Remove(_ context.Context, path string) error {
	if err := removeLocal(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	if mirror := l.mirrorPath(path); mirror != "" {
		if err := removeLocal(mirror); err != nil {
			return fmt.Errorf("remove mirror of %s: %w", path, err)
		}
	}
	return nil
}

func (l *Local) Close() error { return nil }

func (l *Local) mirrorPath(path string) string {
	if l.MirrorDir == "" {
		return ""
	}
	return filepath.Join(l.MirrorDir, filepath.FromSlash(relativeKey(l.Root, path)))
}

// relativeKey maps path to a slash-separated key: relative to root when
// inside it, otherwise under "external/" with the absolute path appended.
func relativeKey(root, path string) string {
	clean := filepath.Clean(path)
	if root != "" {
		if rel, err := filepath.Rel(filepath.Clean(root), clean); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(rel)
		}
	}
	return "external/" + strings.TrimPrefix(filepath.ToSlash(clean), "/")
}
