package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/felixgeelhaar/parley/domain/telemetry"
)

// OTelMeter wraps an OpenTelemetry meter.
type OTelMeter struct {
	meter metric.Meter
}

// NewOTelMeter creates a new OpenTelemetry meter.
func NewOTelMeter(name string) *OTelMeter {
	return &OTelMeter{
		meter: otel.Meter(name),
	}
}

// Counter implements telemetry.Meter.
func (m *OTelMeter) Counter(name string, opts ...telemetry.MetricOption) telemetry.Counter {
	cfg := &telemetry.MetricConfig{}
	for _, opt := range opts {
		opt.ApplyMetric(cfg)
	}

	otelOpts := make([]metric.Int64CounterOption, 0, 2)
	if cfg.Description != "" {
		otelOpts = append(otelOpts, metric.WithDescription(cfg.Description))
	}
	if cfg.Unit != "" {
		otelOpts = append(otelOpts, metric.WithUnit(cfg.Unit))
	}

	counter, err := m.meter.Int64Counter(name, otelOpts...)
	if err != nil {
		return &noopCounter{}
	}
	return &otelCounter{counter: counter}
}

// Histogram implements telemetry.Meter.
func (m *OTelMeter) Histogram(name string, opts ...telemetry.MetricOption) telemetry.Histogram {
	cfg := &telemetry.MetricConfig{}
	for _, opt := range opts {
		opt.ApplyMetric(cfg)
	}

	otelOpts := make([]metric.Float64HistogramOption, 0, 2)
	if cfg.Description != "" {
		otelOpts = append(otelOpts, metric.WithDescription(cfg.Description))
	}
	if cfg.Unit != "" {
		otelOpts = append(otelOpts, metric.WithUnit(cfg.Unit))
	}

	histogram, err := m.meter.Float64Histogram(name, otelOpts...)
	if err != nil {
		return &noopHistogram{}
	}
	return &otelHistogram{histogram: histogram}
}

var _ telemetry.Meter = (*OTelMeter)(nil)

// otelCounter wraps an OpenTelemetry counter.
type otelCounter struct {
	counter metric.Int64Counter
}

// Add implements telemetry.Counter.
func (c *otelCounter) Add(ctx context.Context, value int64, attrs ...telemetry.Attribute) {
	c.counter.Add(ctx, value, metric.WithAttributes(convertAttributes(attrs)...))
}

var _ telemetry.Counter = (*otelCounter)(nil)

// otelHistogram wraps an OpenTelemetry histogram.
type otelHistogram struct {
	histogram metric.Float64Histogram
}

// Record implements telemetry.Histogram.
func (h *otelHistogram) Record(ctx context.Context, value float64, attrs ...telemetry.Attribute) {
	h.histogram.Record(ctx, value, metric.WithAttributes(convertAttributes(attrs)...))
}

var _ telemetry.Histogram = (*otelHistogram)(nil)

// TurnMetrics bundles the instruments the engine reports per turn.
type TurnMetrics struct {
	Turns          telemetry.Counter
	TurnDuration   telemetry.Histogram
	Matches        telemetry.Histogram
	ToolCalls      telemetry.Counter
	Diagnostics    telemetry.Counter
	CritiquePasses telemetry.Histogram
}

// NewTurnMetrics creates the turn pipeline instruments on the given meter.
func NewTurnMetrics(meter telemetry.Meter) *TurnMetrics {
	return &TurnMetrics{
		Turns: meter.Counter("parley.turns",
			telemetry.WithDescription("Processed customer turns")),
		TurnDuration: meter.Histogram("parley.turn.duration",
			telemetry.WithDescription("End-to-end turn processing time"),
			telemetry.WithUnit("ms")),
		Matches: meter.Histogram("parley.turn.matches",
			telemetry.WithDescription("Guidelines matched per turn")),
		ToolCalls: meter.Counter("parley.tool.calls",
			telemetry.WithDescription("Tool invocations by outcome")),
		Diagnostics: meter.Counter("parley.diagnostics",
			telemetry.WithDescription("Diagnostics recorded on reply traces")),
		CritiquePasses: meter.Histogram("parley.turn.critique_passes",
			telemetry.WithDescription("Critique evaluations per turn")),
	}
}
