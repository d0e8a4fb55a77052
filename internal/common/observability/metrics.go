package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability records scheduler tick instruments through the OpenTelemetry
// prometheus exporter. A nil *Observability is valid and records nothing.
type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	tickCounter   otelmetric.Int64Counter
	tickDuration  otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	tickCounter, _ := meter.Int64Counter(
		"scheduler.ticks",
		otelmetric.WithDescription("Number of scheduler ticks executed"),
	)

	tickDuration, _ := meter.Float64Histogram(
		"scheduler.tick.duration",
		otelmetric.WithDescription("Scheduler tick duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider: provider,
		meter:         meter,
		tickCounter:   tickCounter,
		tickDuration:  tickDuration,
	}
}

// RecordTick counts one executed tick of the named timer.
func (o *Observability) RecordTick(ctx context.Context, timer, status string) {
	if o == nil || o.tickCounter == nil {
		return
	}
	o.tickCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("timer", timer),
		attribute.String("status", status),
	))
}

func (o *Observability) RecordTickDuration(ctx context.Context, timer string, duration time.Duration) {
	if o == nil || o.tickDuration == nil {
		return
	}
	o.tickDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("timer", timer),
	))
}

func (o *Observability) Shutdown() {
	if o == nil || o.meterProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	o.meterProvider.Shutdown(ctx)
}
