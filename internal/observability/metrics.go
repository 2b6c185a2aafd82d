// Package observability provides OpenTelemetry instrumentation for
// tracing and metrics.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes the OpenTelemetry metrics provider with a
// Prometheus exporter. It returns the HTTP handler for the /metrics
// endpoint and a shutdown function for graceful cleanup.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// Metrics holds the scheduler's instruments. Best-effort operations
// (heartbeat extension, notify, run-log append) report their failures
// here so fire-and-forget never becomes operational blindness.
type Metrics struct {
	RunsStarted        metric.Int64Counter
	RunsSucceeded      metric.Int64Counter
	RunsFailed         metric.Int64Counter
	JobsReaped         metric.Int64Counter
	JobsDisabled       metric.Int64Counter
	RunningJobs        metric.Int64UpDownCounter
	BestEffortFailures metric.Int64Counter
}

// NewMetrics registers the scheduler instruments on the global meter.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("autoplane-scheduler")
	m := &Metrics{}

	var err error
	if m.RunsStarted, err = meter.Int64Counter("autoplane.runs.started",
		metric.WithDescription("Runs started")); err != nil {
		return nil, err
	}
	if m.RunsSucceeded, err = meter.Int64Counter("autoplane.runs.succeeded",
		metric.WithDescription("Runs finished successfully")); err != nil {
		return nil, err
	}
	if m.RunsFailed, err = meter.Int64Counter("autoplane.runs.failed",
		metric.WithDescription("Runs finished with a failure")); err != nil {
		return nil, err
	}
	if m.JobsReaped, err = meter.Int64Counter("autoplane.jobs.reaped",
		metric.WithDescription("Expired leases cleared by the reaper")); err != nil {
		return nil, err
	}
	if m.JobsDisabled, err = meter.Int64Counter("autoplane.jobs.disabled",
		metric.WithDescription("Jobs permanently disabled after max retries")); err != nil {
		return nil, err
	}
	if m.RunningJobs, err = meter.Int64UpDownCounter("autoplane.jobs.running",
		metric.WithDescription("Jobs currently executing in this process")); err != nil {
		return nil, err
	}
	if m.BestEffortFailures, err = meter.Int64Counter("autoplane.besteffort.failures",
		metric.WithDescription("Failures of best-effort operations, by op")); err != nil {
		return nil, err
	}

	return m, nil
}

// The helpers below are nil-safe so call sites under test can run
// without a meter provider.

// BestEffortFailed records a failed best-effort operation.
func (m *Metrics) BestEffortFailed(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.BestEffortFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RunStarted increments the started-runs counter.
func (m *Metrics) RunStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.RunsStarted.Add(ctx, 1)
}

// RunSucceeded increments the succeeded-runs counter.
func (m *Metrics) RunSucceeded(ctx context.Context) {
	if m == nil {
		return
	}
	m.RunsSucceeded.Add(ctx, 1)
}

// RunFailed increments the failed-runs counter.
func (m *Metrics) RunFailed(ctx context.Context) {
	if m == nil {
		return
	}
	m.RunsFailed.Add(ctx, 1)
}

// Reaped records leases cleared by the reaper.
func (m *Metrics) Reaped(ctx context.Context, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.JobsReaped.Add(ctx, n)
}

// Disabled records a job permanently disabled.
func (m *Metrics) Disabled(ctx context.Context) {
	if m == nil {
		return
	}
	m.JobsDisabled.Add(ctx, 1)
}

// RunningDelta adjusts the running-jobs gauge.
func (m *Metrics) RunningDelta(ctx context.Context, d int64) {
	if m == nil {
		return
	}
	m.RunningJobs.Add(ctx, d)
}
