package logging

import (
	"context"
	"errors"
	"log/slog"
)

// TeeLogger duplicates everything base logs into the extra handlers. Each
// handler keeps its own level.
func TeeLogger(base *slog.Logger, extra ...slog.Handler) *slog.Logger {
	var hs []slog.Handler
	if base != nil {
		hs = append(hs, base.Handler())
	}
	for _, h := range extra {
		if h != nil {
			hs = append(hs, h)
		}
	}
	switch len(hs) {
	case 0:
		return NewNop()
	case 1:
		return slog.New(hs[0])
	}
	return slog.New(teeHandler(hs))
}

type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(teeHandler, len(t))
	for i, h := range t {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	next := make(teeHandler, len(t))
	for i, h := range t {
		next[i] = h.WithGroup(name)
	}
	return next
}
