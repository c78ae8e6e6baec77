// Package grpclog provides a small structured logger used throughout the
// resolver core. It wraps a *slog.Logger passed in at construction and
// logs printf-formatted messages (no key/value attributes), with an added
// prefix matching grpc-go's own PrefixLogger shape.
package grpclog

import (
	"fmt"
	"log/slog"
	"os"
)

// PrefixLogger logs every message with a fixed prefix (typically the
// resolver's target or a watched resource name) prepended to the message.
type PrefixLogger struct {
	logger *slog.Logger
	prefix string
	level  int
}

// New wraps logger (or a default stderr text logger if nil) with the given
// prefix. verbosity gates V(level) — a level <= verbosity is considered
// enabled.
func New(logger *slog.Logger, prefix string, verbosity int) *PrefixLogger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &PrefixLogger{logger: logger, prefix: prefix, level: verbosity}
}

// V reports whether verbose logging at the given level is enabled, for
// gating expensive pretty-printing before a log call.
func (l *PrefixLogger) V(level int) bool {
	if l == nil {
		return false
	}
	return level <= l.level
}

func (l *PrefixLogger) msg(format string, args ...any) string {
	if l.prefix == "" {
		return fmt.Sprintf(format, args...)
	}
	return l.prefix + ": " + fmt.Sprintf(format, args...)
}

// Infof logs at info level.
func (l *PrefixLogger) Infof(format string, args ...any) {
	if l == nil {
		return
	}
	l.logger.Info(l.msg(format, args...))
}

// Warningf logs at warn level.
func (l *PrefixLogger) Warningf(format string, args ...any) {
	if l == nil {
		return
	}
	l.logger.Warn(l.msg(format, args...))
}

// Errorf logs at error level.
func (l *PrefixLogger) Errorf(format string, args ...any) {
	if l == nil {
		return
	}
	l.logger.Error(l.msg(format, args...))
}
