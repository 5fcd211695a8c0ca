package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir     string `toml:"work_dir"`
	StoreDir    string `toml:"store_dir"`
	SeqStoreDir string `toml:"seq_store_dir"`
	LogDir      string `toml:"log_dir"`
	// DownstreamArtifacts lists outputs of later pipeline stages. When any of
	// them exists the whole assembly has moved past error adjustment.
	DownstreamArtifacts []string `toml:"downstream_artifacts"`
}

// Catalog describes where per-read lengths and overlap counts come from.
type Catalog struct {
	LengthsPath  string `toml:"lengths_path"`
	OverlapsPath string `toml:"overlaps_path"`
	DumpBinary   string `toml:"dump_binary"`
	MaxID        int    `toml:"max_id"`
}

// Detection configures the error detection stage.
type Detection struct {
	Enabled          bool    `toml:"enabled"`
	Binary           string  `toml:"binary"`
	MemoryGiB        float64 `toml:"memory_gib"`
	MaxReads         int64   `toml:"max_reads"`
	MaxBases         int64   `toml:"max_bases"`
	WindowSize       int     `toml:"window_size"`
	ErrorRate        float64 `toml:"error_rate"`
	MinOverlapLength int     `toml:"min_overlap_length"`
}

// Adjustment configures the overlap error adjustment stage.
type Adjustment struct {
	Enabled          bool    `toml:"enabled"`
	Binary           string  `toml:"binary"`
	MemoryGiB        float64 `toml:"memory_gib"`
	MaxReads         int64   `toml:"max_reads"`
	MaxBases         int64   `toml:"max_bases"`
	MaxReadLength    int64   `toml:"max_read_length"`
	ErrorRate        float64 `toml:"error_rate"`
	MinOverlapLength int     `toml:"min_overlap_length"`
}

// Commit configures the terminal load into the overlap store.
type Commit struct {
	Binary     string `toml:"binary"`
	MarkerName string `toml:"marker_name"`
}

// Workflow contains retry and polling configuration.
type Workflow struct {
	MaxAttempts  int `toml:"max_attempts"`
	PollInterval int `toml:"poll_interval"`
	Concurrency  int `toml:"concurrency"`
}

// Staging configures the durable artifact boundary.
type Staging struct {
	Backend         string `toml:"backend"`
	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix"`
	CredentialsFile string `toml:"credentials_file"`
	// MirrorDir, for the local backend, receives a verified copy of every
	// published artifact. Empty keeps artifacts in the work dir only.
	MirrorDir string `toml:"mirror_dir"`
}

// Metrics configures Prometheus textfile export.
type Metrics struct {
	Textfile string `toml:"textfile"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for oea.
//
// Configuration sections by subsystem:
//   - Paths: work directory, overlap store, sequence store, logs
//   - Catalog: read length and overlap count sources
//   - Detection: partitioning and worker settings for error detection
//   - Adjustment: partitioning and worker settings for error adjustment
//   - Commit: overlap store loader and its completion marker
//   - Workflow: retry budget, poll cadence, local worker concurrency
//   - Staging: local or GCS-backed artifact publication
//   - Metrics: Prometheus textfile output
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Catalog    Catalog    `toml:"catalog"`
	Detection  Detection  `toml:"detection"`
	Adjustment Adjustment `toml:"adjustment"`
	Commit     Commit     `toml:"commit"`
	Workflow   Workflow   `toml:"workflow"`
	Staging    Staging    `toml:"staging"`
	Metrics    Metrics    `toml:"metrics"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/oea/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. Unknown keys are
// rejected so a misspelled setting cannot silently fall back to a default.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}
	if exists {
		if err := decodeFile(resolved, &cfg); err != nil {
			return nil, "", false, err
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	dec := toml.NewDecoder(file).DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("parse config %s: unknown keys:\n%s", path, strict.String())
		}
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return fmt.Errorf("parse config %s:%d:%d: %w", path, row, col, err)
		}
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// resolveConfigPath picks, in order: the explicit path, $OEA_CONFIG, the
// user config, then ./oea.toml. The bool reports whether the file exists.
func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = strings.TrimSpace(os.Getenv(configPathEnv))
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		exists, err := isFile(expanded)
		return expanded, exists, err
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("oea.toml")
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{defaultPath, projectPath} {
		if ok, _ := isFile(candidate); ok {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

func isFile(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat config: %w", err)
	case info.IsDir():
		return false, fmt.Errorf("config path %s is a directory", path)
	}
	return true, nil
}

// EnsureDirectories creates the work and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// PollInterval returns the workflow poll cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.PollInterval) * time.Second
}

// MarkerPath returns the location of the overlap store commit marker.
func (c *Config) MarkerPath() string {
	return filepath.Join(c.Paths.StoreDir, c.Commit.MarkerName)
}

// QueuePath returns the SQLite database that tracks stage and job state.
func (c *Config) QueuePath() string {
	return filepath.Join(c.Paths.WorkDir, "oea.db")
}

// expandPath expands environment variables and a leading ~, then makes the
// path absolute. Empty stays empty.
func expandPath(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	value = os.ExpandEnv(value)
	if value == "~" || strings.HasPrefix(value, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		value = filepath.Join(home, strings.TrimPrefix(value, "~"))
	}
	absolute, err := filepath.Abs(value)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", value, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
