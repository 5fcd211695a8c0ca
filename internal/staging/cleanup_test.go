package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"oea/internal/logging"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestCleanStaleAttemptsInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStaleAttempts(context.Background(), dir, nil, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleAttemptsKeepsAcceptedTokens(t *testing.T) {
	dir := t.TempDir()
	keep := []string{
		filepath.Join(dir, ArtifactName(1, "aaa", "red")),
		filepath.Join(dir, ArtifactName(2, "bbb", "red")),
		filepath.Join(dir, "jobs.toml"),
		filepath.Join(dir, "red.merged"),
	}
	stale := []string{
		filepath.Join(dir, ArtifactName(2, "old", "red")),
		filepath.Join(dir, ArtifactName(2, "old", "red")+".tmp"),
		filepath.Join(dir, ArtifactName(3, "late", "log")),
	}
	for _, path := range append(append([]string{}, keep...), stale...) {
		touch(t, path)
	}
	if err := os.Mkdir(filepath.Join(dir, "0004.sub.dir"), 0o755); err != nil {
		t.Fatal(err)
	}

	accepted := map[string]struct{}{"aaa": {}, "bbb": {}}
	result := CleanStaleAttempts(context.Background(), dir, accepted, logging.NewNop())

	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}
	if len(result.Removed) != len(stale) {
		t.Fatalf("expected %d removals, got %v", len(stale), result.Removed)
	}
	for _, path := range stale {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s should have been removed", path)
		}
	}
	for _, path := range keep {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s should still exist", path)
		}
	}
}

func TestParseArtifactName(t *testing.T) {
	cases := []struct {
		name      string
		wantIndex int
		wantToken string
		wantOK    bool
	}{
		{"0001.abc.red", 1, "abc", true},
		{"0012.f00d-beef.red.tmp", 12, "f00d-beef", true},
		{"0003.tok.log", 3, "tok", true},
		{"jobs.toml", 0, "", false},
		{"0000.tok.red", 0, "", false},
		{"0001..red", 0, "", false},
		{"0001.tok", 0, "", false},
	}
	for _, tc := range cases {
		index, token, ok := ParseArtifactName(tc.name)
		if ok != tc.wantOK || index != tc.wantIndex || token != tc.wantToken {
			t.Errorf("ParseArtifactName(%q) = %d, %q, %v", tc.name, index, token, ok)
		}
	}
	if got := ArtifactName(7, "tok", ".erates"); got != "0007.tok.erates" {
		t.Fatalf("unexpected artifact name %q", got)
	}
}

func TestDirUsage(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a"))
	touch(t, filepath.Join(dir, "nested", "b"))

	files, size, err := DirUsage(dir)
	if err != nil {
		t.Fatal(err)
	}
	if files != 2 || size != 2 {
		t.Fatalf("expected 2 files of 2 bytes, got %d files %d bytes", files, size)
	}
	if files, _, err := DirUsage(filepath.Join(dir, "missing")); err != nil || files != 0 {
		t.Fatalf("missing dir should report nothing, got %d %v", files, err)
	}
}
