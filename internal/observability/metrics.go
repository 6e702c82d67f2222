package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: How long requests/jobs take
// - Traffic: Request/job throughput
// - Errors: Rate of failures
// - Saturation: Resource utilization (concurrent jobs)
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Job metrics (Latency, Traffic, Saturation)
	JobDuration  metric.Float64Histogram
	JobsTotal    metric.Int64Counter
	JobsActive   metric.Int64UpDownCounter
	OrphansTotal metric.Int64Counter

	// Webhook delivery metrics
	WebhookDuration  metric.Float64Histogram
	WebhookDelivered metric.Int64Counter
	WebhookFailed    metric.Int64Counter
	WebhookDropped   metric.Int64Counter

	// Fault injection
	ChaosInjectedTotal metric.Int64Counter
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("loadharness")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Job metrics
	m.JobDuration, err = meter.Float64Histogram(
		"job_duration_seconds",
		metric.WithDescription("Job wall-clock duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 900),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsTotal, err = meter.Int64Counter(
		"jobs_total",
		metric.WithDescription("Total number of load jobs started"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsActive, err = meter.Int64UpDownCounter(
		"jobs_active",
		metric.WithDescription("Number of currently running load jobs (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.OrphansTotal, err = meter.Int64Counter(
		"worker_orphans_total",
		metric.WithDescription("Workers that outlived the termination timeout and were abandoned"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Webhook metrics
	m.WebhookDuration, err = meter.Float64Histogram(
		"webhook_duration_seconds",
		metric.WithDescription("Webhook delivery latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.WebhookDelivered, err = meter.Int64Counter(
		"webhook_delivered_total",
		metric.WithDescription("Total events successfully delivered"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.WebhookFailed, err = meter.Int64Counter(
		"webhook_failed_total",
		metric.WithDescription("Total events failed after retries"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.WebhookDropped, err = meter.Int64Counter(
		"webhook_dropped_total",
		metric.WithDescription("Total events dropped due to a full buffer"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ChaosInjectedTotal, err = meter.Int64Counter(
		"chaos_injected_total",
		metric.WithDescription("Requests failed by the chaos middleware"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordJobStarted records a new load job.
func (m *Metrics) RecordJobStarted(ctx context.Context, jobType string) {
	attrs := metric.WithAttributes(jobTypeAttr(jobType))
	m.JobsTotal.Add(ctx, 1, attrs)
	m.JobsActive.Add(ctx, 1, attrs)
}

// RecordJobFinished records a job reaching a terminal state.
func (m *Metrics) RecordJobFinished(ctx context.Context, jobType, status string, durationSeconds float64) {
	m.JobDuration.Record(ctx, durationSeconds, metric.WithAttributes(jobTypeAttr(jobType), outcomeAttr(status)))
	m.JobsActive.Add(ctx, -1, metric.WithAttributes(jobTypeAttr(jobType)))
}

// RecordOrphanAbandoned records a worker that ignored termination.
func (m *Metrics) RecordOrphanAbandoned(ctx context.Context, jobType string) {
	m.OrphansTotal.Add(ctx, 1, metric.WithAttributes(jobTypeAttr(jobType)))
}

// RecordWebhookDelivered records a successful event delivery with its duration.
func (m *Metrics) RecordWebhookDelivered(ctx context.Context, durationSeconds float64) {
	m.WebhookDelivered.Add(ctx, 1)
	m.WebhookDuration.Record(ctx, durationSeconds)
}

// RecordWebhookFailed records a failed event delivery.
func (m *Metrics) RecordWebhookFailed(ctx context.Context) {
	m.WebhookFailed.Add(ctx, 1)
}

// RecordWebhookDropped records a dropped event.
func (m *Metrics) RecordWebhookDropped(ctx context.Context) {
	m.WebhookDropped.Add(ctx, 1)
}

// RecordChaosInjected records a request failed on purpose.
func (m *Metrics) RecordChaosInjected(ctx context.Context, path string) {
	m.ChaosInjectedTotal.Add(ctx, 1, metric.WithAttributes(pathAttr(path)))
}
