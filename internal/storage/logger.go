package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// badgerLogger forwards Badger's printf-style logging to slog.
type badgerLogger struct {
	l *slog.Logger
}

func newBadgerLogger(l *slog.Logger) *badgerLogger {
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &badgerLogger{l: l.With("component", "badger")}
}

func (b *badgerLogger) logf(level slog.Level, format string, args ...any) {
	if !b.l.Enabled(context.Background(), level) {
		return
	}
	b.l.Log(context.Background(), level, strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (b *badgerLogger) Errorf(format string, args ...any) { b.logf(slog.LevelError, format, args...) }

func (b *badgerLogger) Warningf(format string, args ...any) { b.logf(slog.LevelWarn, format, args...) }

// Badger is chatty at info level; it goes to debug.
func (b *badgerLogger) Infof(format string, args ...any) { b.logf(slog.LevelDebug, format, args...) }

func (b *badgerLogger) Debugf(format string, args ...any) { b.logf(slog.LevelDebug-4, format, args...) }
