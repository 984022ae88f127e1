package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// BuildLog owns the two append-only log files kept under the build root: a
// general log receiving every record and an error-only log receiving records
// at slog.LevelError and above. A single BuildLog is created per pipeline run
// and closed when the run ends.
type BuildLog struct {
	general *os.File
	errOnly *os.File

	mu sync.Mutex
}

// OpenBuildLog opens (creating if needed) both log files in append mode.
func OpenBuildLog(logPath, errorLogPath string) (*BuildLog, error) {
	if logPath == "" || errorLogPath == "" {
		return nil, errors.New("logging: both log paths are required")
	}
	for _, path := range []string{logPath, errorLogPath} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
	}

	general, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open build log: %w", err)
	}
	errOnly, err := os.OpenFile(errorLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		general.Close()
		return nil, fmt.Errorf("open error log: %w", err)
	}

	return &BuildLog{general: general, errOnly: errOnly}, nil
}

// Handler returns a slog handler that writes every record to the general log
// and errors additionally to the error-only log. Pass it to slog.New, or
// combine it with a console handler via Tee.
func (l *BuildLog) Handler(level slog.Leveler) slog.Handler {
	return &buildLogHandler{log: l, level: level}
}

// Close flushes and closes both log files.
func (l *BuildLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return errors.Join(l.general.Close(), l.errOnly.Close())
}

func (l *BuildLog) write(line string, isError bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.general.WriteString(line); err != nil {
		return err
	}
	if isError {
		if _, err := l.errOnly.WriteString(line); err != nil {
			return err
		}
	}
	return nil
}

type buildLogHandler struct {
	log   *BuildLog
	level slog.Leveler
	attrs []slog.Attr
}

func (h *buildLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.level != nil {
		min = h.level.Level()
	}
	return level >= min
}

func (h *buildLogHandler) Handle(ctx context.Context, record slog.Record) error {
	var b strings.Builder
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(ts.UTC().Format(time.RFC3339))
	b.WriteByte(' ')
	b.WriteString(record.Level.String())
	b.WriteByte(' ')
	b.WriteString(record.Message)
	for _, attr := range h.attrs {
		writeAttr(&b, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		writeAttr(&b, attr)
		return true
	})
	b.WriteByte('\n')
	return h.log.write(b.String(), record.Level >= slog.LevelError)
}

func (h *buildLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &buildLogHandler{log: h.log, level: h.level, attrs: merged}
}

func (h *buildLogHandler) WithGroup(string) slog.Handler { return h }

// Tee fans records out to every provided handler; a record is written to each
// handler whose level admits it.
func Tee(handlers ...slog.Handler) slog.Handler {
	return teeHandler{handlers: handlers}
}

type teeHandler struct {
	handlers []slog.Handler
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range t.handlers {
		if h.Enabled(ctx, record.Level) {
			if err := h.Handle(ctx, record.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	wrapped := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		wrapped[i] = h.WithAttrs(attrs)
	}
	return teeHandler{handlers: wrapped}
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	wrapped := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		wrapped[i] = h.WithGroup(name)
	}
	return teeHandler{handlers: wrapped}
}
