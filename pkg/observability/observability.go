// Package observability wires OpenTelemetry tracing and metrics for the
// spur service and CLI.
//
// With no OTLP endpoint configured every instrument is a no-op, so callers
// never need to branch on whether telemetry is enabled.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/josephblackelite/spur-protocol/pkg/contracts"
	"github.com/josephblackelite/spur-protocol/pkg/enforcement"
)

const instrumentationName = "github.com/josephblackelite/spur-protocol"

// Attribute keys shared by spans and metrics.
var (
	AttrEnvelopeID = attribute.Key("spur.envelope.id")
	AttrVerb       = attribute.Key("spur.intent.verb")
	AttrPolicyID   = attribute.Key("spur.policy.id")
	AttrAdapterID  = attribute.Key("spur.adapter.id")
	AttrMode       = attribute.Key("spur.decision.mode")
	AttrGate       = attribute.Key("spur.decision.gate")
	AttrOperation  = attribute.Key("spur.operation")
)

// Config configures the exporters.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// OTLPEndpoint is a gRPC host:port. Empty disables export.
	OTLPEndpoint string
	Insecure     bool
}

// Provider owns the tracer, meter and the instruments recorded by spur.
type Provider struct {
	tracer trace.Tracer
	logger *slog.Logger

	decisions  metric.Int64Counter
	operations metric.Int64Counter
	failures   metric.Int64Counter
	duration   metric.Float64Histogram

	shutdown []func(context.Context) error
}

// New builds a Provider from cfg. Exporting providers are also installed as
// the otel globals.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.OTLPEndpoint == "" {
		return Noop(), nil
	}

	res := resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	traceExp, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	metricExp, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		_ = traceExp.Shutdown(ctx)
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExp, sdktrace.WithBatchTimeout(5*time.Second)),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	p, err := NewWithProviders(tp, mp)
	if err != nil {
		return nil, err
	}
	p.shutdown = []func(context.Context) error{tp.Shutdown, mp.Shutdown}
	p.logger.InfoContext(ctx, "telemetry export enabled",
		"endpoint", cfg.OTLPEndpoint,
		"service", cfg.ServiceName,
	)
	return p, nil
}

// Noop returns a Provider whose instruments record nothing.
func Noop() *Provider {
	// Noop meters never fail instrument creation.
	p, _ := NewWithProviders(tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	return p
}

// NewWithProviders builds a Provider over existing providers. Shutdown is
// left to the caller.
func NewWithProviders(tp trace.TracerProvider, mp metric.MeterProvider) (*Provider, error) {
	meter := mp.Meter(instrumentationName)
	p := &Provider{
		tracer: tp.Tracer(instrumentationName),
		logger: slog.Default().With("component", "observability"),
	}

	var err error
	if p.decisions, err = meter.Int64Counter("spur.decisions",
		metric.WithDescription("Enforcement decisions by mode and gate"),
		metric.WithUnit("{decision}"),
	); err != nil {
		return nil, err
	}
	if p.operations, err = meter.Int64Counter("spur.operations",
		metric.WithDescription("Operations started"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, err
	}
	if p.failures, err = meter.Int64Counter("spur.operations.failed",
		metric.WithDescription("Operations that returned an error"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, err
	}
	if p.duration, err = meter.Float64Histogram("spur.operation.duration",
		metric.WithDescription("Operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1),
	); err != nil {
		return nil, err
	}
	return p, nil
}

// Shutdown flushes and stops providers created by New.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Tracer returns the provider's tracer.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Decide runs the enforcement gates inside a span and counts the outcome
// by mode and gate.
func (p *Provider) Decide(ctx context.Context, in enforcement.Input) enforcement.Verdict {
	ctx, span := p.tracer.Start(ctx, "spur.evaluate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrEnvelopeID.String(in.Envelope.ID),
			AttrVerb.String(in.Envelope.Intent.Verb),
			AttrPolicyID.String(in.Policy.PolicyID),
			AttrAdapterID.String(in.Adapter.AdapterID),
		),
	)
	defer span.End()

	v := enforcement.Assess(in)
	outcome := DecisionAttrs(v)
	span.SetAttributes(outcome...)
	if !v.Decision.Allowed() {
		span.AddEvent("denied", trace.WithAttributes(attribute.String("reason", v.Decision.Reason)))
	}
	p.decisions.Add(ctx, 1, metric.WithAttributes(outcome...))
	return v
}

// DecisionAttrs returns the mode and gate attributes for v. ALLOW verdicts
// report gate "none".
func DecisionAttrs(v enforcement.Verdict) []attribute.KeyValue {
	g := string(v.Gate)
	if v.Decision.Mode == contracts.ModeAllow {
		g = "none"
	}
	return []attribute.KeyValue{
		AttrMode.String(string(v.Decision.Mode)),
		AttrGate.String(g),
	}
}

// Track starts a span for op and returns a function that ends it and
// records duration and failure.
func (p *Provider) Track(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	all := append([]attribute.KeyValue{AttrOperation.String(op)}, attrs...)
	opAttr := metric.WithAttributes(AttrOperation.String(op))

	ctx, span := p.tracer.Start(ctx, "spur."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(all...),
	)
	p.operations.Add(ctx, 1, opAttr)

	return ctx, func(err error) {
		p.duration.Record(ctx, time.Since(start).Seconds(), opAttr)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			p.failures.Add(ctx, 1, opAttr)
		}
		span.End()
	}
}
