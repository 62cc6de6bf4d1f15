package tracing

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the process-wide tracer, set by InitTracerProvider.
var Tracer trace.Tracer = otel.Tracer(tracerName)

const (
	defaultServiceName = "hospital-gate"
	tracerName         = "github.com/pilab-dev/hospital-gate"
)

// Options tune the exported spans.
type Options struct {
	// Writer receives the exported spans. Defaults to os.Stdout.
	Writer io.Writer
	// SampleRatio is the fraction of root spans sampled. Zero or >= 1 samples all.
	SampleRatio float64
	Pretty      bool
}

// InitTracerProvider sets up the stdout exporter, registers the provider and
// W3C propagators globally and returns the provider for shutdown.
func InitTracerProvider(serviceName string, opts Options) (*sdktrace.TracerProvider, error) {
	if serviceName == "" {
		serviceName = os.Getenv("OTEL_SERVICE_NAME")
	}
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	expOpts := []stdouttrace.Option{}
	if opts.Writer != nil {
		expOpts = append(expOpts, stdouttrace.WithWriter(opts.Writer))
	}
	if opts.Pretty {
		expOpts = append(expOpts, stdouttrace.WithPrettyPrint())
	}

	exporter, err := stdouttrace.New(expOpts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil {
		return nil, err
	}

	sampler := sdktrace.AlwaysSample()
	if opts.SampleRatio > 0 && opts.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRatio))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	Tracer = tp.Tracer(tracerName)

	return tp, nil
}
