package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"

	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/lmittmann/tint"
)

// Options configures the process logger.
type Options struct {
	Level  slog.Level
	Format string
	// Sentry adds a sentry handler. Errors become events; info and warn
	// records are shipped as sentry logs.
	Sentry bool
}

// New builds the process logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	var console slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "json":
		console = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level})
	default:
		console = tint.NewHandler(w, &tint.Options{Level: opts.Level})
	}
	if !opts.Sentry {
		return slog.New(console)
	}

	sentryHandler := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelInfo},
	}.NewSentryHandler(context.Background())
	return slog.New(MultiHandler(console, levelGate{Handler: sentryHandler, min: opts.Level}))
}

// levelGate keeps the sentry handler from receiving records below the
// configured console level.
type levelGate struct {
	slog.Handler
	min slog.Level
}

func (g levelGate) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= g.min && g.Handler.Enabled(ctx, level)
}

func (g levelGate) WithAttrs(attrs []slog.Attr) slog.Handler {
	return levelGate{Handler: g.Handler.WithAttrs(attrs), min: g.min}
}

func (g levelGate) WithGroup(name string) slog.Handler {
	return levelGate{Handler: g.Handler.WithGroup(name), min: g.min}
}
