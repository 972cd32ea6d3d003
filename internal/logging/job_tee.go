package logging

import (
	"context"
	"errors"
	"log/slog"
)

// jobTee copies each record to the process logger and to one job's log file.
// Each side applies its own level, so a debug job log fills up while
// vidproc.log stays at info.
type jobTee struct {
	shared slog.Handler
	job    slog.Handler
}

func (t jobTee) Enabled(ctx context.Context, level slog.Level) bool {
	return t.shared.Enabled(ctx, level) || t.job.Enabled(ctx, level)
}

func (t jobTee) Handle(ctx context.Context, record slog.Record) error {
	var sharedErr, jobErr error
	if t.shared.Enabled(ctx, record.Level) {
		sharedErr = t.shared.Handle(ctx, record.Clone())
	}
	if t.job.Enabled(ctx, record.Level) {
		jobErr = t.job.Handle(ctx, record)
	}
	return errors.Join(sharedErr, jobErr)
}

func (t jobTee) WithAttrs(attrs []slog.Attr) slog.Handler {
	return jobTee{shared: t.shared.WithAttrs(attrs), job: t.job.WithAttrs(attrs)}
}

func (t jobTee) WithGroup(name string) slog.Handler {
	return jobTee{shared: t.shared.WithGroup(name), job: t.job.WithGroup(name)}
}

// JobLogger returns a logger writing through base and additionally into job.
// A nil job handler leaves base untouched; a nil base logs to job alone.
func JobLogger(base *slog.Logger, job slog.Handler) *slog.Logger {
	switch {
	case job == nil && base == nil:
		return NewNop()
	case job == nil:
		return base
	case base == nil:
		return slog.New(job)
	}
	if _, ok := base.Handler().(NoopHandler); ok {
		return slog.New(job)
	}
	return slog.New(jobTee{shared: base.Handler(), job: job})
}
