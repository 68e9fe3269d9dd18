// Package observability sets up request and escalation tracing.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/campusfix/backend/internal/config"
)

// Shutdown flushes pending spans.
type Shutdown func(context.Context) error

type Tracing struct {
	Service     string
	Env         string
	Campus      string
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

func TracingFromConfig(service string, cfg config.Config) Tracing {
	return Tracing{
		Service:     service,
		Env:         cfg.Env,
		Campus:      cfg.CampusName,
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    cfg.OTelInsecure,
		SampleRatio: cfg.OTelSampleRatio,
	}
}

// Start exports spans over OTLP gRPC. Without an endpoint tracing stays on
// the global no-op provider.
func Start(ctx context.Context, t Tracing) (Shutdown, error) {
	if t.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exporter, err := otlptracegrpc.New(ctx, exporterOptions(t)...)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithSampler(sampler(t.SampleRatio)),
		sdktrace.WithResource(serviceResource(t)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

func exporterOptions(t Tracing) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(t.Endpoint),
		otlptracegrpc.WithTimeout(10 * time.Second),
	}
	if t.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return opts
}

// sampler follows the caller's decision and samples new traces at ratio.
// Out of range ratios sample everything.
func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

func serviceResource(t Tracing) *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(t.Service),
		semconv.DeploymentEnvironment(t.Env),
	}
	if t.Campus != "" {
		attrs = append(attrs, attribute.String("campus.name", t.Campus))
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
	if err != nil {
		return resource.Default()
	}
	return res
}
