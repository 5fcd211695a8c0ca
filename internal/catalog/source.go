package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

var commandContext = exec.CommandContext

// FileSource reads pre-dumped catalogs from local files.
type FileSource struct {
	LengthsPath  string
	OverlapsPath string
}

// Open implements Source.
func (s FileSource) Open(_ context.Context, kind Kind) (io.ReadCloser, error) {
	path, err := s.path(kind)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

func (s FileSource) path(kind Kind) (string, error) {
	switch kind {
	case KindLengths:
		return s.LengthsPath, nil
	case KindOverlaps:
		return s.OverlapsPath, nil
	default:
		return "", fmt.Errorf("unknown catalog kind %q", kind)
	}
}

// CommandSource streams catalogs from the store dump utility's stdout.
type CommandSource struct {
	Binary       string
	LengthsArgs  []string
	OverlapsArgs []string
}

// NewCommandSource returns a source that dumps read lengths from the
// sequence store and per-read overlap counts from the overlap store.
func NewCommandSource(binary, seqStore, ovlStore string) CommandSource {
	return CommandSource{
		Binary:       binary,
		LengthsArgs:  []string{"-S", seqStore, "-lengths"},
		OverlapsArgs: []string{"-S", ovlStore, "-counts"},
	}
}

// Open implements Source.
func (s CommandSource) Open(ctx context.Context, kind Kind) (io.ReadCloser, error) {
	var args []string
	switch kind {
	case KindLengths:
		args = s.LengthsArgs
	case KindOverlaps:
		args = s.OverlapsArgs
	default:
		return nil, fmt.Errorf("unknown catalog kind %q", kind)
	}
	if strings.TrimSpace(s.Binary) == "" {
		return nil, errors.New("dump binary not configured")
	}

	cmd := commandContext(ctx, s.Binary, args...) //nolint:gosec
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%s stdout: %w", s.Binary, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", s.Binary, err)
	}
	return &commandReader{ReadCloser: stdout, cmd: cmd, stderr: stderr, name: s.Binary}, nil
}

type commandReader struct {
	io.ReadCloser
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	name   string
}

// Close drains the pipe and waits for the dump utility, surfacing its stderr
// when it exits nonzero.
func (r *commandReader) Close() error {
	_, _ = io.Copy(io.Discard, r.ReadCloser)
	if err := r.cmd.Wait(); err != nil {
		detail := strings.TrimSpace(r.stderr.String())
		if detail == "" {
			return fmt.Errorf("%s: %w", r.name, err)
		}
		return fmt.Errorf("%s: %w: %s", r.name, err, detail)
	}
	return nil
}
