// Package log builds the [slog.Handler] selected by the --log-level and
// --log-format flags.
package log

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/muesli/termenv"
	"go.opentelemetry.io/otel/trace"

	charmlog "github.com/charmbracelet/log"
)

var (
	ErrUnknownLogLevel  = errors.New("unknown log level")
	ErrUnknownLogFormat = errors.New("unknown log format")

	// AllFormats lists the accepted --log-format values.
	AllFormats = []string{"json", "logfmt", "text"}
	// AllLevels lists the accepted --log-level values.
	AllLevels = []string{"error", "warn", "info", "debug"}
)

var levels = map[string]slog.Level{
	"error":   slog.LevelError,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"info":    slog.LevelInfo,
	"debug":   slog.LevelDebug,
}

// ParseLevel maps a --log-level value to a [slog.Level].
func ParseLevel(s string) (slog.Level, error) {
	lvl, ok := levels[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLogLevel, s)
	}

	return lvl, nil
}

// NewHandler returns a handler writing to w. The "text" format uses the charm
// logger; "json" and "logfmt" use the slog handlers with source locations.
func NewHandler(w io.Writer, level, format string) (slog.Handler, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	format = strings.ToLower(format)
	if !slices.Contains(AllFormats, format) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLogFormat, format)
	}

	opts := &slog.HandlerOptions{AddSource: true, Level: lvl}

	switch format {
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	case "logfmt":
		return slog.NewTextHandler(w, opts), nil
	}

	logger := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           charmlog.Level(lvl),
		Formatter:       charmlog.TextFormatter,
		ReportTimestamp: true,
		ReportCaller:    lvl <= slog.LevelDebug,
		TimeFormat:      time.TimeOnly,
	})
	logger.SetColorProfile(termenv.ColorProfile())

	return logger, nil
}

// WithContext returns the default logger, tagged with a short trace id when
// ctx carries a sampled span.
func WithContext(ctx context.Context) *slog.Logger {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return slog.Default()
	}

	traceID := sc.TraceID().String()

	return slog.With(slog.String("trace_id", traceID[:8]))
}
