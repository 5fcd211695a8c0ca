package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

const (
	pollEvery    = 250 * time.Millisecond
	maxLineBytes = 1 << 20
)

// TailOptions selects which part of a log Tail returns.
type TailOptions struct {
	// Offset < 0 asks for the last Limit lines; otherwise reading starts at
	// this byte offset.
	Offset int64
	Limit  int
	// Follow waits up to Wait for new lines when none are available yet.
	Follow bool
	Wait   time.Duration
}

// TailResult carries the lines read and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads lines from path. A missing file yields no lines and offset 0.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return TailResult{}, nil
	}
	if err != nil {
		return TailResult{}, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return TailResult{}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{}, fmt.Errorf("log path %q is a directory", path)
	}

	var res TailResult
	if opts.Offset < 0 {
		res, err = lastLines(f, opts.Limit)
	} else {
		start := opts.Offset
		if start > info.Size() {
			// truncated or rotated underneath us
			start = info.Size()
		}
		res, err = linesFrom(f, start)
	}
	if err != nil || len(res.Lines) > 0 || !opts.Follow || opts.Wait <= 0 {
		return res, err
	}
	return follow(ctx, f, res.Offset, opts.Wait)
}

// lastLines keeps a ring of the final limit lines and leaves the offset at
// end of file. limit <= 0 only positions the offset.
func lastLines(f *os.File, limit int) (TailResult, error) {
	if limit <= 0 {
		end, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			return TailResult{}, fmt.Errorf("seek log file: %w", err)
		}
		return TailResult{Offset: end}, nil
	}
	ring := make([]string, 0, limit)
	next := 0
	end, err := scan(f, 0, func(line string) {
		if len(ring) < limit {
			ring = append(ring, line)
			return
		}
		ring[next] = line
		next = (next + 1) % limit
	})
	if err != nil {
		return TailResult{}, err
	}
	return TailResult{Lines: append(ring[next:], ring[:next]...), Offset: end}, nil
}

func linesFrom(f *os.File, start int64) (TailResult, error) {
	var lines []string
	end, err := scan(f, start, func(line string) { lines = append(lines, line) })
	if err != nil {
		return TailResult{}, err
	}
	return TailResult{Lines: lines, Offset: end}, nil
}

// scan reads complete lines from start and returns the offset just past
// the last newline consumed. A trailing partial line is left for the next
// call.
func scan(f *os.File, start int64, emit func(string)) (int64, error) {
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return start, fmt.Errorf("seek log file: %w", err)
	}
	r := bufio.NewReaderSize(f, 64*1024)
	offset := start
	for {
		line, err := r.ReadString('\n')
		if err == nil {
			offset += int64(len(line))
			text := line[:len(line)-1]
			if n := len(text); n > 0 && text[n-1] == '\r' {
				text = text[:n-1]
			}
			if len(text) > maxLineBytes {
				text = text[:maxLineBytes]
			}
			emit(text)
			continue
		}
		if errors.Is(err, io.EOF) {
			return offset, nil
		}
		return offset, fmt.Errorf("read log file: %w", err)
	}
}

func follow(ctx context.Context, f *os.File, offset int64, wait time.Duration) (TailResult, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return TailResult{Offset: offset}, ctx.Err()
		case <-deadline.C:
			return TailResult{Offset: offset}, nil
		case <-ticker.C:
		}
		res, err := linesFrom(f, offset)
		if err != nil || len(res.Lines) > 0 {
			return res, err
		}
	}
}
