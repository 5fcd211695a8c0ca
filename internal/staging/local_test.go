package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"oea/internal/config"
	"oea/internal/logging"
)

func TestLocalWithoutMirror(t *testing.T) {
	root := t.TempDir()
	stager := NewLocal(root, "", logging.NewNop())
	ctx := context.Background()
	path := filepath.Join(root, "detection", "jobs.toml")

	if ok, err := stager.Exists(ctx, path); err != nil || ok {
		t.Fatalf("expected absent artifact, got %v %v", ok, err)
	}
	if err := stager.Fetch(ctx, path); !IsNotExist(err) {
		t.Fatalf("expected not-exist from Fetch, got %v", err)
	}
	if err := stager.Publish(ctx, path); !IsNotExist(err) {
		t.Fatalf("publishing a missing file should fail, got %v", err)
	}

	touch(t, path)
	if err := stager.Publish(ctx, path); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if ok, _ := stager.Exists(ctx, path); !ok {
		t.Fatal("expected artifact to exist")
	}
	if err := stager.Remove(ctx, path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := stager.Remove(ctx, path); err != nil {
		t.Fatalf("second Remove should be a no-op, got %v", err)
	}
}

func TestLocalMirrorRestoresArtifacts(t *testing.T) {
	root := t.TempDir()
	mirror := t.TempDir()
	stager := NewLocal(root, mirror, logging.NewNop())
	ctx := context.Background()
	path := filepath.Join(root, "detection", "red.merged")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("XYZW"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := stager.Publish(ctx, path); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	mirrored := filepath.Join(mirror, "detection", "red.merged")
	if data, err := os.ReadFile(mirrored); err != nil || string(data) != "XYZW" {
		t.Fatalf("expected mirrored copy, got %q %v", data, err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if ok, _ := stager.Exists(ctx, path); !ok {
		t.Fatal("mirror copy should count as existing")
	}
	if err := stager.Fetch(ctx, path); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if data, _ := os.ReadFile(path); string(data) != "XYZW" {
		t.Fatalf("expected restored content, got %q", data)
	}

	if err := stager.Remove(ctx, path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(mirrored); !os.IsNotExist(err) {
		t.Fatal("Remove should delete the mirror copy")
	}
}

func TestLocalMirrorsPathsOutsideRoot(t *testing.T) {
	root := t.TempDir()
	mirror := t.TempDir()
	storeDir := t.TempDir()
	stager := NewLocal(root, mirror, logging.NewNop())
	marker := filepath.Join(storeDir, "evalues")
	touch(t, marker)

	if err := stager.Publish(context.Background(), marker); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	want := filepath.Join(mirror, "external", filepath.FromSlash(marker[1:]))
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected mirror at %s: %v", want, err)
	}
}

func TestRelativeKey(t *testing.T) {
	cases := []struct {
		root, path, want string
	}{
		{"/work", "/work/detection/0001.t.red", "detection/0001.t.red"},
		{"/work", "/work/../store/evalues", "external/store/evalues"},
		{"/work", "/workbench/x", "external/workbench/x"},
		{"", "/abs/file", "external/abs/file"},
	}
	for _, tc := range cases {
		if got := relativeKey(tc.root, tc.path); got != tc.want {
			t.Errorf("relativeKey(%q, %q) = %q, want %q", tc.root, tc.path, got, tc.want)
		}
	}
}

func TestGCSObjectName(t *testing.T) {
	g := &GCS{bucket: "reads", prefix: "runs/asm", root: "/work"}
	if got := g.objectName("/work/adjustment/manifest"); got != "runs/asm/adjustment/manifest" {
		t.Fatalf("unexpected object name %q", got)
	}
	if got := g.uri("/work/adjustment/manifest"); got != "gs://reads/runs/asm/adjustment/manifest" {
		t.Fatalf("unexpected uri %q", got)
	}
	g.prefix = ""
	if got := g.objectName("/work/jobs.toml"); got != "jobs.toml" {
		t.Fatalf("unexpected object name without prefix %q", got)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.WorkDir = t.TempDir()
	stager, err := New(context.Background(), &cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := stager.(*Local); !ok {
		t.Fatalf("expected local stager, got %T", stager)
	}

	cfg.Staging.Backend = "ftp"
	if _, err := New(context.Background(), &cfg, logging.NewNop()); err == nil {
		t.Fatal("expected unsupported backend error")
	}
}
