package observability

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	domainconfig "github.com/felixgeelhaar/parley/domain/config"
	"github.com/felixgeelhaar/parley/domain/telemetry"
)

// Provider manages the observability infrastructure.
type Provider struct {
	config         Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	reader         *sdkmetric.ManualReader
	tracer         telemetry.Tracer
	meter          telemetry.Meter
	shutdownFuncs  []func(context.Context) error
}

// New creates a new observability provider.
func New(opts ...Option) (*Provider, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Provider{
		config:        cfg,
		shutdownFuncs: make([]func(context.Context) error, 0),
	}

	if cfg.Tracing.Enabled {
		if err := p.setupTracing(); err != nil {
			return nil, err
		}
	} else {
		p.tracer = NewNoopTracer()
	}

	if cfg.Metrics.Enabled {
		p.setupMetrics()
		p.meter = NewOTelMeter(cfg.ServiceName)
	} else {
		p.meter = NewNoopMeter()
	}

	return p, nil
}

// FromAgentConfig builds a provider from the observability section of an
// agent configuration file.
func FromAgentConfig(cfg domainconfig.ObservabilityConfig) (*Provider, error) {
	if !cfg.Enabled {
		return NewNoopProvider(), nil
	}

	opts := []Option{WithMetrics()}
	if cfg.ServiceName != "" {
		opts = append(opts, WithServiceName(cfg.ServiceName))
	}
	switch ExporterType(cfg.Exporter) {
	case ExporterOTLP:
		opts = append(opts, WithTracing(ExporterOTLP, cfg.Endpoint))
	case ExporterStdout:
		opts = append(opts, WithStdoutTracing())
	default:
	}
	if cfg.Insecure {
		opts = append(opts, WithTracingInsecure())
	}
	if cfg.SampleRate > 0 {
		opts = append(opts, WithSampleRate(cfg.SampleRate))
	}
	return New(opts...)
}

// setupTracing initializes the tracing infrastructure.
func (p *Provider) setupTracing() error {
	ctx := context.Background()

	// We don't merge with Default() to avoid schema URL conflicts.
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(p.config.ServiceName),
		semconv.ServiceVersion(p.config.ServiceVersion),
		semconv.DeploymentEnvironment(p.config.Environment),
	)

	var exporter sdktrace.SpanExporter

	switch p.config.Tracing.Exporter {
	case ExporterOTLP:
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(p.config.Tracing.Endpoint),
		}
		if p.config.Tracing.Insecure {
			opts = append(opts, otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return err
		}
		exporter = exp

	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return err
		}
		exporter = exp

	case ExporterNoop:
		p.tracer = NewNoopTracer()
		return nil

	default:
		return errors.New("unknown trace exporter type")
	}

	var sampler sdktrace.Sampler
	if p.config.Tracing.SampleRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if p.config.Tracing.SampleRate <= 0.0 {
		sampler = sdktrace.NeverSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(p.config.Tracing.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(p.config.Tracing.BatchTimeout),
			sdktrace.WithMaxExportBatchSize(p.config.Tracing.MaxExportBatchSize),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	p.tracerProvider = tp
	p.tracer = NewOTelTracer(p.config.ServiceName)
	p.shutdownFuncs = append(p.shutdownFuncs, tp.Shutdown)

	return nil
}

// setupMetrics installs an SDK meter provider with a manual reader so the
// global meter records instead of discarding. Collect drains it.
func (p *Provider) setupMetrics() {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(p.config.ServiceName),
		semconv.ServiceVersion(p.config.ServiceVersion),
	)

	p.reader = sdkmetric.NewManualReader()
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(p.reader),
	)
	otel.SetMeterProvider(p.meterProvider)
	p.shutdownFuncs = append(p.shutdownFuncs, p.meterProvider.Shutdown)
}

// Collect gathers the current metric state. Returns an empty result when
// metrics are disabled.
func (p *Provider) Collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	if p.reader == nil {
		return rm, nil
	}
	err := p.reader.Collect(ctx, &rm)
	return rm, err
}

// Tracer returns the tracer.
func (p *Provider) Tracer() telemetry.Tracer {
	return p.tracer
}

// Meter returns the meter.
func (p *Provider) Meter() telemetry.Meter {
	return p.meter
}

// Shutdown gracefully shuts down the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdownFuncs {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// NewStdoutProvider creates a provider with stdout exporters (for development).
func NewStdoutProvider(serviceName string) (*Provider, error) {
	return New(
		WithServiceName(serviceName),
		WithStdoutTracing(),
		WithMetrics(),
	)
}

// NewOTLPProvider creates a provider with an OTLP trace exporter.
func NewOTLPProvider(serviceName, endpoint string) (*Provider, error) {
	return New(
		WithServiceName(serviceName),
		WithTracing(ExporterOTLP, endpoint),
		WithTracingInsecure(),
		WithMetrics(),
	)
}

// NewNoopProvider creates a provider with no-op tracer and meter.
func NewNoopProvider() *Provider {
	return &Provider{
		config:        DefaultConfig(),
		tracer:        NewNoopTracer(),
		meter:         NewNoopMeter(),
		shutdownFuncs: nil,
	}
}
