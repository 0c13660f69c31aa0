package observability

import (
	"context"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Observability bundles the otel meter and tracer used by the resolve path.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          otelmetric.Meter
	tracer         trace.Tracer
	resolved       otelmetric.Int64Counter
	duration       otelmetric.Float64Histogram
}

// Option customizes New.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	spanProcs  []sdktrace.SpanProcessor
	global     bool
}

// WithRegisterer sends otel metrics to a specific Prometheus registry.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

// WithSpanProcessor attaches a span processor, e.g. a tracetest.SpanRecorder.
func WithSpanProcessor(p sdktrace.SpanProcessor) Option {
	return func(o *options) { o.spanProcs = append(o.spanProcs, p) }
}

// WithoutGlobals keeps the providers out of the otel globals.
func WithoutGlobals() Option {
	return func(o *options) { o.global = false }
}

func New(serviceName string, opts ...Option) *Observability {
	o := &options{global: true}
	for _, opt := range opts {
		opt(o)
	}

	obs := &Observability{}

	var exporterOpts []otelprom.Option
	if o.registerer != nil {
		exporterOpts = append(exporterOpts, otelprom.WithRegisterer(o.registerer))
	}
	exporter, err := otelprom.New(exporterOpts...)
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		obs.meter = noop.NewMeterProvider().Meter(serviceName)
	} else {
		obs.meterProvider = metric.NewMeterProvider(metric.WithReader(exporter))
		obs.meter = obs.meterProvider.Meter(serviceName)
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithSampler(sdktrace.AlwaysSample())}
	for _, p := range o.spanProcs {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(p))
	}
	obs.tracerProvider = sdktrace.NewTracerProvider(tpOpts...)
	obs.tracer = obs.tracerProvider.Tracer(serviceName)

	if o.global {
		if obs.meterProvider != nil {
			otel.SetMeterProvider(obs.meterProvider)
		}
		otel.SetTracerProvider(obs.tracerProvider)
	}

	obs.resolved, _ = obs.meter.Int64Counter(
		"questions.resolved",
		otelmetric.WithDescription("Number of questions resolved by outcome"),
	)
	obs.duration, _ = obs.meter.Float64Histogram(
		"questions.duration",
		otelmetric.WithDescription("Question resolution duration"),
		otelmetric.WithUnit("ms"),
	)
	return obs
}

// NewNoop is used where no telemetry is wanted.
func NewNoop() *Observability {
	return &Observability{
		meter:  noop.NewMeterProvider().Meter("noop"),
		tracer: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

// StartSpan opens a span; callers must End it.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if o == nil || o.tracer == nil {
		return tracenoop.NewTracerProvider().Tracer("noop").Start(ctx, name)
	}
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordResolved counts one resolved question and its duration.
func (o *Observability) RecordResolved(ctx context.Context, intent, outcome string, d time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("intent", intent),
		attribute.String("outcome", outcome),
	)
	if o.resolved != nil {
		o.resolved.Add(ctx, 1, attrs)
	}
	if o.duration != nil {
		o.duration.Record(ctx, float64(d.Milliseconds()), attrs)
	}
}

func (o *Observability) Shutdown() {
	if o == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
}
