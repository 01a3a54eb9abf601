// Package observability wires OpenTelemetry tracing and the gateway's
// Prometheus domain counters.
//
// Spans opened by the gateway's own code share one set of attribute keys so
// a trace can be found by tenant or job id no matter which service produced
// it. SetupOTel exports them over OTLP gRPC; until it runs (or when tracing
// is disabled) the global provider is a no-op and spans cost nothing.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"

	"github.com/tbourn/dental-gateway/internal/config"
)

// instrumentationName scopes spans created by the gateway's own code.
const instrumentationName = "github.com/tbourn/dental-gateway"

// Span attribute keys used across services.
const (
	AttrCompanyID = attribute.Key("company_id")
	AttrJobID     = attribute.Key("job_id")
	AttrJobStatus = attribute.Key("job_status")
)

// Exporter construction is swapped out in tests so no collector is needed.
var newExporter = func(ctx context.Context, opts ...otlptracegrpc.Option) (sdktrace.SpanExporter, error) {
	return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
}

// Tracer returns the gateway tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartSpan opens a gateway span tagged with the calling tenant.
func StartSpan(ctx context.Context, name, companyID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, AttrCompanyID.String(companyID))
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// FailSpan marks span as failed with err and a short, code-like description
// (e.g. "upload failed"). The description is what dashboards group on; err
// carries the detail.
func FailSpan(span trace.Span, err error, desc string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, desc)
}

// SetupOTel installs a tracer provider exporting to cfg.Endpoint and returns
// its shutdown function, which flushes pending spans. With tracing disabled
// it installs nothing and the returned function is a no-op.
func SetupOTel(ctx context.Context, cfg config.OTELConfig, version string) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newExporter(ctx, exporterOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}
	res, err := resource.Merge(resource.Default(), serviceResource(cfg.ServiceName, version))
	if err != nil {
		_ = exp.Shutdown(ctx)
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(samplerFor(cfg.SampleRatio)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

func exporterOptions(cfg config.OTELConfig) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		return append(opts, otlptracegrpc.WithInsecure())
	}
	return append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
}

// serviceResource is schemaless so merging it onto resource.Default never
// conflicts with the SDK's semconv version.
func serviceResource(name, version string) *resource.Resource {
	return resource.NewSchemaless(
		semconv.ServiceName(name),
		semconv.ServiceVersion(version),
	)
}

// samplerFor honours an upstream sampling decision and otherwise samples
// ratio of new traces. The ends of the range skip the ratio sampler.
func samplerFor(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}
