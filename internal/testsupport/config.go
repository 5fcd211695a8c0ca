package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"oea/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.StoreDir = filepath.Join(base, "asm.ovlStore")
	cfgVal.Paths.SeqStoreDir = filepath.Join(base, "asm.seqStore")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Workflow.PollInterval = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithMaxAttempts overrides the shared attempt budget.
func WithMaxAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.MaxAttempts = n
	}
}

// WithCatalogFiles writes lengths and overlap-count catalogs into the temp
// directory and points the config at them.
func WithCatalogFiles(lengths, counts string) ConfigOption {
	return func(b *configBuilder) {
		lengthsPath := filepath.Join(b.baseDir, "catalog", "lengths.txt")
		countsPath := filepath.Join(b.baseDir, "catalog", "counts.txt")
		if err := os.MkdirAll(filepath.Dir(lengthsPath), 0o755); err != nil {
			b.t.Fatalf("mkdir catalog dir: %v", err)
		}
		if err := os.WriteFile(lengthsPath, []byte(lengths), 0o644); err != nil {
			b.t.Fatalf("write lengths: %v", err)
		}
		if err := os.WriteFile(countsPath, []byte(counts), 0o644); err != nil {
			b.t.Fatalf("write counts: %v", err)
		}
		b.cfg.Catalog.LengthsPath = lengthsPath
		b.cfg.Catalog.OverlapsPath = countsPath
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default worker binaries are
// stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{
				b.cfg.Detection.Binary,
				b.cfg.Adjustment.Binary,
				b.cfg.Commit.Binary,
				b.cfg.Catalog.DumpBinary,
			}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
