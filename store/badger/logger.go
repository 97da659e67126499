package badger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// logger adapts slog to badger.Logger. Badger is chatty at info level, so
// its info messages are logged at debug.
type logger struct {
	l *slog.Logger
}

func newLogger(l *slog.Logger) *logger {
	return &logger{l: l.With(slog.String("component", "badger"))}
}

func (b *logger) log(level slog.Level, format string, args ...any) {
	ctx := context.Background()
	if !b.l.Enabled(ctx, level) {
		return
	}
	b.l.Log(ctx, level, strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (b *logger) Errorf(format string, args ...any)   { b.log(slog.LevelError, format, args...) }
func (b *logger) Warningf(format string, args ...any) { b.log(slog.LevelWarn, format, args...) }
func (b *logger) Infof(format string, args ...any)    { b.log(slog.LevelDebug, format, args...) }
func (b *logger) Debugf(format string, args ...any)   { b.log(slog.LevelDebug-4, format, args...) }
