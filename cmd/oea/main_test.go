package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"oea/internal/config"
	"oea/internal/testsupport"
)

// workerScript writes a line to the path following -o, like a batch worker.
const workerScript = `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then out="$2"; fi
  shift
done
[ -n "$out" ] || exit 2
echo "batch $out" > "$out"
`

// commitScript creates the marker in the store named by -S.
const commitScript = `#!/bin/sh
store=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-S" ]; then store="$2"; fi
  shift
done
mkdir -p "$store" && : > "$store/evalues"
`

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithCatalogFiles(
		"1 100\n2 100\n3 100\n4 100\n5 100\n6 100\n",
		"1 * 4\n2 * 4\n3 * 4\n4 * 4\n5 * 4\n6 * 4\n",
	))
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	cfg.Detection.MaxReads = 4
	cfg.Logging.Level = "error"
	binDir := filepath.Join(base, "bin")
	writeScript(t, filepath.Join(binDir, cfg.Detection.Binary), workerScript)
	writeScript(t, filepath.Join(binDir, cfg.Adjustment.Binary), workerScript)
	writeScript(t, filepath.Join(binDir, cfg.Commit.Binary), commitScript)
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	if err := os.MkdirAll(cfg.Paths.StoreDir, 0o755); err != nil {
		t.Fatalf("mkdir store: %v", err)
	}

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func writeScript(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestRunCommandCommitsStore(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"run", "--poll", "10ms"}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "Overlap store committed")
	if _, err := os.Stat(env.cfg.MarkerPath()); err != nil {
		t.Fatalf("expected commit marker: %v", err)
	}

	merged := testsupport.ReadContent(t, filepath.Join(env.cfg.Paths.WorkDir, "detection", "detection.red"))
	if lines := strings.Split(strings.TrimSpace(merged), "\n"); len(lines) != 2 {
		t.Fatalf("expected two merged detection batches, got %q", merged)
	}

	out, _, err = runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Committed")
	requireContains(t, out, "[OK] yes")
	requireContains(t, out, "Done")
}

func TestLogsCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Logging.Level = "info"
	writeTestConfig(t, env.configPath, env.cfg)

	out, _, err := runCLI(t, []string{"logs", "detection"}, env.configPath)
	if err != nil {
		t.Fatalf("logs before configure: %v", err)
	}
	requireContains(t, out, "No log lines")

	if _, _, err := runCLI(t, []string{"configure", "detection"}, env.configPath); err != nil {
		t.Fatalf("configure: %v", err)
	}
	out, _, err = runCLI(t, []string{"logs", "detection", "-n", "100"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, strings.ToLower(out), "stage partitioned")

	if _, _, err := runCLI(t, []string{"logs", "merge"}, env.configPath); err == nil {
		t.Fatal("expected unknown log target to fail")
	}
}

func TestRunCommandFailsPreflight(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("PATH", t.TempDir())

	_, _, err := runCLI(t, []string{"run"}, env.configPath)
	if err == nil {
		t.Fatal("expected preflight failure")
	}
	requireContains(t, err.Error(), "Detection worker")
}

func TestPhaseCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"configure", "detection"}, env.configPath)
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	requireContains(t, out, "detection: Emitted")

	out, _, err = runCLI(t, []string{"check", "detection"}, env.configPath)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	requireContains(t, out, "detection: Done")

	if _, _, err := runCLI(t, []string{"configure", "commit"}, env.configPath); err == nil {
		t.Fatal("expected unknown stage error")
	}
	if _, _, err := runCLI(t, []string{"commit"}, env.configPath); err == nil {
		t.Fatal("expected commit to fail without an adjustment manifest")
	}
}

func TestPartitionCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"partition", "detection"}, env.configPath)
	if err != nil {
		t.Fatalf("partition: %v", err)
	}
	requireContains(t, strings.ToLower(out), "2 batches")
	requireContains(t, out, "Memory budget: 16 GiB")

	out, _, err = runCLI(t, []string{"--json", "partition", "detection"}, env.configPath)
	if err != nil {
		t.Fatalf("partition --json: %v", err)
	}
	var plan struct {
		Batches []struct {
			BeginID int
			EndID   int
		}
		MaxID int
	}
	if err := json.Unmarshal([]byte(out), &plan); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	if plan.MaxID != 6 || len(plan.Batches) != 2 || plan.Batches[1].EndID != 6 {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.WorkDir, "detection", "jobs.toml")); err == nil {
		t.Fatal("partition dry run wrote a descriptor")
	}
}

func TestStatusJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"--json", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var status statusOutput
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if len(status.Workflow.Stages) != 3 || status.Workflow.Attempt != 0 {
		t.Fatalf("unexpected workflow status %+v", status.Workflow)
	}
	if !status.Database.DatabaseExists || !status.Database.IntegrityCheck {
		t.Fatalf("unexpected database health %+v", status.Database)
	}
}

func TestResetRequiresForce(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"reset"}, env.configPath); err == nil {
		t.Fatal("expected reset without --force to fail")
	}
	out, _, err := runCLI(t, []string{"reset", "--force"}, env.configPath)
	if err != nil {
		t.Fatalf("reset --force: %v", err)
	}
	requireContains(t, out, "Queue state cleared")
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Detection: enabled")

	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "[workflow]")
	requireContains(t, out, env.cfg.Paths.StoreDir)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}
}

func TestRenderStatusLine(t *testing.T) {
	if got := renderStatusLine("Committed", statusOK, "yes", false); got != "  Committed:"+strings.Repeat(" ", 11)+"[OK] yes" {
		t.Fatalf("unexpected line %q", got)
	}
	if got := renderStatusLine("Attempt", statusWarn, "", false); !strings.HasSuffix(got, "[WARN]") {
		t.Fatalf("unexpected line %q", got)
	}
}

func TestRenderTableAligns(t *testing.T) {
	out := renderTable([]column{{title: "Stage"}, {title: "Batches", right: true}}, [][]string{{"detection", "3"}, {"adjustment"}})
	requireContains(t, out, "detection")
	requireContains(t, out, "adjustment")
	// go-pretty upper-cases header titles by default.
	requireContains(t, out, "BATCHES")
	requireContains(t, out, "      3 │")
	if renderTable(nil, nil) != "" {
		t.Fatal("expected empty render without headers")
	}
}
