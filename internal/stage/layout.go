package stage

import (
	"path/filepath"

	"oea/internal/staging"
)

// Layout maps workflow artifacts onto the work dir.
type Layout struct {
	WorkDir string
}

func (l Layout) StageDir(s Stage) string { return filepath.Join(l.WorkDir, string(s)) }

func (l Layout) LogDir(s Stage) string { return filepath.Join(l.StageDir(s), "logs") }

// Descriptor is the durable record that a stage was configured.
func (l Layout) Descriptor(s Stage) string { return filepath.Join(l.StageDir(s), "jobs.toml") }

// Report is the human-readable partition table written at configure time.
func (l Layout) Report(s Stage) string { return filepath.Join(l.StageDir(s), "partition.txt") }

// StageLog receives a copy of every controller log line for the stage.
func (l Layout) StageLog(s Stage) string { return filepath.Join(l.StageDir(s), "oea.log") }

// Terminal is the artifact whose existence means the stage is complete: the
// merged detection output, or the adjustment manifest.
func (l Layout) Terminal(s Stage) string {
	if s == Adjustment {
		return filepath.Join(l.StageDir(s), "erates.manifest")
	}
	return filepath.Join(l.StageDir(s), "detection.red")
}

// Output is the fenced artifact path for one attempt of a batch.
func (l Layout) Output(s Stage, index int, token string) string {
	return filepath.Join(l.StageDir(s), staging.ArtifactName(index, token, s.outputExt()))
}

// JobLog is the fenced log path for one attempt of a batch.
func (l Layout) JobLog(s Stage, index int, token string) string {
	return filepath.Join(l.LogDir(s), staging.ArtifactName(index, token, "log"))
}

func (l Layout) CommitLog() string { return filepath.Join(l.WorkDir, "commit.err") }

func (l Layout) Lock() string { return filepath.Join(l.WorkDir, "oea.lock") }
