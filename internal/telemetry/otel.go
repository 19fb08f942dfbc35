package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Exporter bridges per-provider outcomes into OpenTelemetry instruments.
// Grounded on the metric.Meter instrument-creation pattern from the example
// pack's validation metrics collector, narrowed to the counters and
// histogram the exported observations need.
type Exporter struct {
	requestCounter metric.Int64Counter
	errorCounter   metric.Int64Counter
	latencyHist    metric.Int64Histogram
	costCounter    metric.Float64Counter
}

// NewExporter creates the instrument set on meterProvider's "llmrouter"
// meter. A nil meterProvider is not accepted, callers that don't want OTel
// export simply don't construct an Exporter.
func NewExporter(meterProvider metric.MeterProvider) (*Exporter, error) {
	meter := meterProvider.Meter("llmrouter")

	requestCounter, err := meter.Int64Counter(
		"llmrouter_requests_total",
		metric.WithDescription("Total provider attempts, by provider and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create request counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"llmrouter_errors_total",
		metric.WithDescription("Total failed provider attempts, by provider and error kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create error counter: %w", err)
	}

	latencyHist, err := meter.Int64Histogram(
		"llmrouter_latency_ms",
		metric.WithDescription("Per-attempt latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create latency histogram: %w", err)
	}

	costCounter, err := meter.Float64Counter(
		"llmrouter_cost_usd_total",
		metric.WithDescription("Cumulative estimated cost in USD, by provider"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create cost counter: %w", err)
	}

	return &Exporter{
		requestCounter: requestCounter,
		errorCounter:   errorCounter,
		latencyHist:    latencyHist,
		costCounter:    costCounter,
	}, nil
}

// Export records one outcome for providerID. The router calls this
// alongside every Window.RecordOutcome; a nil Exporter is a no-op, and OTel
// export never gates the routing path.
func (x *Exporter) Export(ctx context.Context, providerID string, e Entry) {
	if x == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("provider", providerID))
	x.requestCounter.Add(ctx, 1, attrs)
	x.latencyHist.Record(ctx, e.LatencyMs, attrs)
	x.costCounter.Add(ctx, e.CostUSD, attrs)
	if !e.OK {
		errAttrs := metric.WithAttributes(
			attribute.String("provider", providerID),
			attribute.String("error_kind", e.ErrorKind),
		)
		x.errorCounter.Add(ctx, 1, errAttrs)
	}
}
