// Package observe provides the observability primitives shared by the
// spatial pipeline: OpenTelemetry metric instruments and a Prometheus
// exporter bridge so deployments can scrape the standard /metrics endpoint.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) records
// through the global meter provider; tests should use [NewMetrics] with
// their own [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all pipeline metrics.
const meterName = "github.com/cwbudde/algo-spatial"

// Metrics holds the pipeline's metric instruments. All fields are safe for
// concurrent use; the underlying OTel types handle their own
// synchronisation.
type Metrics struct {
	// FrameDuration tracks wall-clock per-frame processing time. Use with
	// attribute.String("pipeline", instanceID).
	FrameDuration metric.Float64Histogram

	// FramesProcessed counts frames that completed the full chain.
	FramesProcessed metric.Int64Counter

	// BudgetOverruns counts frames whose processing exceeded the latency
	// budget. Overruns degrade quality, never correctness.
	BudgetOverruns metric.Int64Counter

	// WeightFallbacks counts frames rendered with uniform beamforming
	// weights after an ill-conditioned covariance solve.
	WeightFallbacks metric.Int64Counter

	// ClampedPositions counts frames whose source position was clamped to
	// the HRTF dataset boundary.
	ClampedPositions metric.Int64Counter

	// ActivePipelines tracks pipelines currently in the running state.
	ActivePipelines metric.Int64UpDownCounter
}

// latencyBuckets places most of its resolution around the 10 ms frame
// budget, in seconds.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.002, 0.005, 0.008, 0.01, 0.015, 0.025, 0.05, 0.1,
}

// NewMetrics creates all pipeline instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FrameDuration, err = m.Float64Histogram("spatial.frame.duration",
		metric.WithDescription("Wall-clock processing time per audio frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FramesProcessed, err = m.Int64Counter("spatial.frames.processed",
		metric.WithDescription("Total frames processed through the full chain."),
	); err != nil {
		return nil, err
	}
	if met.BudgetOverruns, err = m.Int64Counter("spatial.budget.overruns",
		metric.WithDescription("Frames whose processing exceeded the latency budget."),
	); err != nil {
		return nil, err
	}
	if met.WeightFallbacks, err = m.Int64Counter("spatial.beamform.weight_fallbacks",
		metric.WithDescription("Frames rendered with uniform weights after an ill-conditioned solve."),
	); err != nil {
		return nil, err
	}
	if met.ClampedPositions, err = m.Int64Counter("spatial.hrtf.clamped_positions",
		metric.WithDescription("Frames whose source position was clamped to the dataset boundary."),
	); err != nil {
		return nil, err
	}
	if met.ActivePipelines, err = m.Int64UpDownCounter("spatial.pipelines.active",
		metric.WithDescription("Pipelines currently in the running state."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call from the global meter provider. Panics if instrument
// creation fails, which the global provider never does.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordFrame records one completed frame for the named pipeline instance.
func (m *Metrics) RecordFrame(ctx context.Context, instanceID string, seconds float64, overBudget bool) {
	attrs := metric.WithAttributes(attribute.String("pipeline", instanceID))
	m.FrameDuration.Record(ctx, seconds, attrs)
	m.FramesProcessed.Add(ctx, 1, attrs)
	if overBudget {
		m.BudgetOverruns.Add(ctx, 1, attrs)
	}
}
