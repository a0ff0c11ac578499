// Package log carries a slog.Logger through contexts for the layout pipeline.
package log

import (
	"context"
	stdlog "log"
	"os"
	"runtime/debug"
	"testing"
	"time"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/sloghuman"
	"cdr.dev/slog/sloggers/slogtest"

	"oss.terrastruct.com/nestviz/lib/env"
)

var _default = slog.Make(sloghuman.Sink(os.Stderr)).Named("default")

type loggerKey struct{}

func from(ctx context.Context) slog.Logger {
	l, ok := ctx.Value(loggerKey{}).(slog.Logger)
	if !ok {
		_default.Warn(ctx, "no logger in context", slog.F("stack", string(debug.Stack())))
		return _default
	}
	return l
}

func With(ctx context.Context, l slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// WithDefault attaches the stderr logger unless ctx already carries one. Library entry points
// call it so that callers may pass a bare context.
func WithDefault(ctx context.Context) context.Context {
	if _, ok := ctx.Value(loggerKey{}).(slog.Logger); ok {
		return ctx
	}
	return With(ctx, _default)
}

// WithTB logs through t. DEBUG turns on debug output.
func WithTB(ctx context.Context, t testing.TB) context.Context {
	l := slogtest.Make(t, nil)
	if env.Debug() {
		l = l.Leveled(slog.LevelDebug)
	}
	return With(ctx, l)
}

// Stderr logs to stderr and redirects the standard library logger there too.
func Stderr(ctx context.Context) context.Context {
	l := slog.Make(sloghuman.Sink(os.Stderr))
	if env.Debug() {
		l = l.Leveled(slog.LevelDebug)
	}
	stdlog.SetOutput(slog.Stdlib(ctx, l, slog.LevelInfo).Writer())
	return With(ctx, l)
}

func Leveled(ctx context.Context, level slog.Level) context.Context {
	return With(ctx, from(ctx).Leveled(level))
}

func Debug(ctx context.Context, msg string, fields ...slog.Field) {
	slog.Helper()
	from(ctx).Debug(ctx, msg, fields...)
}

func Warn(ctx context.Context, msg string, fields ...slog.Field) {
	slog.Helper()
	from(ctx).Warn(ctx, msg, fields...)
}

func Error(ctx context.Context, msg string, fields ...slog.Field) {
	slog.Helper()
	from(ctx).Error(ctx, msg, fields...)
}

// Stage names the logger after one stage of a layout. The returned func logs the stage's
// duration at debug along with fields.
func Stage(ctx context.Context, name string) (context.Context, func(fields ...slog.Field)) {
	ctx = With(ctx, from(ctx).Named(name))
	start := time.Now()
	return ctx, func(fields ...slog.Field) {
		slog.Helper()
		fields = append(fields, slog.F("elapsed", time.Since(start)))
		from(ctx).Debug(ctx, "stage done", fields...)
	}
}

// WithTimeout is context.WithTimeout with NESTVIZ_TIMEOUT taking precedence over timeout. A
// non positive timeout means none.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if seconds, ok := env.Timeout(); ok {
		timeout = time.Duration(seconds) * time.Second
	}
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
