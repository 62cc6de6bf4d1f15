package log

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type zerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter creates a Logger writing to stderr, as console output
// when pretty is set and as JSON otherwise.
func NewZerologAdapter(level zerolog.Level, pretty bool) Logger {
	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return FromZerolog(zerolog.New(out).Level(level).With().Timestamp().Logger())
}

// FromZerolog wraps an existing zerolog logger.
func FromZerolog(l zerolog.Logger) Logger {
	return &zerologAdapter{logger: l}
}

// Zerolog returns the zerolog logger behind l, or a no-op logger when l was
// not built by this package.
func Zerolog(l Logger) zerolog.Logger {
	if z, ok := l.(*zerologAdapter); ok {
		return z.logger
	}
	return zerolog.Nop()
}

// addTraceInfo adds trace_id and span_id when ctx carries a valid span.
func addTraceInfo(ctx context.Context, event *zerolog.Event) *zerolog.Event {
	if ctx == nil {
		return event
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		event = event.Str("trace_id", sc.TraceID().String()).
			Str("span_id", sc.SpanID().String())
	}
	return event
}

func emit(ctx context.Context, event *zerolog.Event, msg string, fields []Fields) {
	event = addTraceInfo(ctx, event)
	for _, f := range fields {
		event = event.Fields(f)
	}
	event.Msg(msg)
}

func (z *zerologAdapter) Debug(ctx context.Context, msg string, fields ...Fields) {
	emit(ctx, z.logger.Debug(), msg, fields)
}

func (z *zerologAdapter) Info(ctx context.Context, msg string, fields ...Fields) {
	emit(ctx, z.logger.Info(), msg, fields)
}

func (z *zerologAdapter) Warn(ctx context.Context, msg string, fields ...Fields) {
	emit(ctx, z.logger.Warn(), msg, fields)
}

func (z *zerologAdapter) Error(ctx context.Context, msg string, err error, fields ...Fields) {
	emit(ctx, z.logger.Error().Err(err), msg, fields)
}

func (z *zerologAdapter) Fatal(ctx context.Context, msg string, err error, fields ...Fields) {
	emit(ctx, z.logger.Fatal().Err(err), msg, fields)
}

// With returns a child logger carrying fields. Trace ids are added per call.
func (z *zerologAdapter) With(fields Fields) Logger {
	return &zerologAdapter{logger: z.logger.With().Fields(fields).Logger()}
}
