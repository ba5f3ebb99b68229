package log_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/loadout/pkg/log"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		"debug":         {input: "debug", want: slog.LevelDebug},
		"upper info":    {input: "INFO", want: slog.LevelInfo},
		"warning alias": {input: "warning", want: slog.LevelWarn},
		"error":         {input: "error", want: slog.LevelError},
		"unknown":       {input: "trace", wantErr: true},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := log.ParseLevel(tc.input)
			if tc.wantErr {
				require.ErrorIs(t, err, log.ErrUnknownLogLevel)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNewHandler(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		level  string
		format string
		want   string
		err    error
	}{
		"json": {
			level:  "info",
			format: "json",
			want:   `"rules":3`,
		},
		"logfmt": {
			level:  "debug",
			format: "LOGFMT",
			want:   "rules=3",
		},
		"text": {
			level:  "info",
			format: "text",
			want:   "rules=3",
		},
		"filtered by level": {
			level:  "error",
			format: "json",
		},
		"unknown format": {
			level:  "info",
			format: "xml",
			err:    log.ErrUnknownLogFormat,
		},
		"unknown level": {
			level:  "loud",
			format: "json",
			err:    log.ErrUnknownLogLevel,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer

			h, err := log.NewHandler(&buf, tc.level, tc.format)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)

				return
			}

			require.NoError(t, err)

			slog.New(h).Info("discovered", slog.Int("rules", 3))

			if tc.want == "" {
				assert.Empty(t, buf.String())

				return
			}

			assert.Contains(t, buf.String(), tc.want)
		})
	}
}

func TestWithContext(t *testing.T) {
	t.Parallel()

	assert.Same(t, slog.Default(), log.WithContext(context.Background()))

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0xab, 0xcd, 0xef, 0x01, 1},
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	assert.NotSame(t, slog.Default(), log.WithContext(ctx))
}
