package app

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions configures the process logger.
type LogOptions struct {
	Debug   bool
	NoColor bool
	// File, when set, receives an uncoloured copy of every line and is
	// rotated by size.
	File string
}

const logTimeFormat = "2006-01-02 15:04:05.000"

// NewLogger builds the tint logger writing to w. The returned closer
// releases the log file and is never nil.
func NewLogger(w io.Writer, opts LogOptions) (*slog.Logger, io.Closer) {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	console := tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: logTimeFormat,
		NoColor:    opts.NoColor,
	})
	if opts.File == "" {
		return slog.New(console), noFile{}
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	file := tint.NewHandler(rotator, &tint.Options{
		Level:      level,
		TimeFormat: logTimeFormat,
		NoColor:    true,
	})
	return slog.New(teeHandler{console, file}), rotator
}

type noFile struct{}

func (noFile) Close() error { return nil }

// teeHandler sends every record to all of its handlers.
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
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
