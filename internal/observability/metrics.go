package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"driverd/internal/artifact"
	"driverd/internal/driver"
	"driverd/internal/notify"
)

// Metrics holds all daemon metrics implementing the golden 4 signals:
// - Latency: How long requests, drivers and deliveries take
// - Traffic: Request/driver throughput
// - Errors: Rate of failures
// - Saturation: Resource utilization (live drivers, notify queue)
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Driver metrics (Latency, Traffic, Errors, Saturation)
	DriverDuration      metric.Float64Histogram
	DriversTotal        metric.Int64Counter
	DriverLaunchesTotal metric.Int64Counter
	DriversActive       metric.Int64UpDownCounter

	// Notify metrics (Latency, Traffic, Errors, Saturation)
	NotifyDuration  metric.Float64Histogram
	NotifyDelivered metric.Int64Counter
	NotifyFailed    metric.Int64Counter
	NotifyDropped   metric.Int64Counter
	NotifyRequeued  metric.Int64Counter
	NotifyQueueSize metric.Int64Gauge

	// Artifact metrics (Latency, Traffic)
	ArtifactFetchDuration metric.Float64Histogram
	ArtifactFetchesTotal  metric.Int64Counter
	ArtifactCacheHits     metric.Int64Counter
}

// The Metrics type doubles as the recorder every package accepts.
var (
	_ driver.MetricsRecorder   = (*Metrics)(nil)
	_ notify.MetricsRecorder   = (*Metrics)(nil)
	_ artifact.MetricsRecorder = (*Metrics)(nil)
)

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("driverd")
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

	// Driver metrics. Drivers are long-lived, so the duration buckets
	// reach into hours.
	m.DriverDuration, err = meter.Float64Histogram(
		"driver_duration_seconds",
		metric.WithDescription("Driver lifetime from submission to terminal state in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 10, 60, 300, 900, 1800, 3600, 7200, 21600, 86400),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DriversTotal, err = meter.Int64Counter(
		"drivers_total",
		metric.WithDescription("Total number of drivers submitted"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DriverLaunchesTotal, err = meter.Int64Counter(
		"driver_launches_total",
		metric.WithDescription("Total driver process launches, relaunches included"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DriversActive, err = meter.Int64UpDownCounter(
		"drivers_active",
		metric.WithDescription("Number of drivers currently supervised (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Notify metrics
	m.NotifyDuration, err = meter.Float64Histogram(
		"notify_duration_seconds",
		metric.WithDescription("Notification delivery latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyDelivered, err = meter.Int64Counter(
		"notify_delivered_total",
		metric.WithDescription("Total notifications successfully delivered"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyFailed, err = meter.Int64Counter(
		"notify_failed_total",
		metric.WithDescription("Total notifications failed after retries"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyDropped, err = meter.Int64Counter(
		"notify_dropped_total",
		metric.WithDescription("Total notifications dropped (buffer full or max requeues)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyRequeued, err = meter.Int64Counter(
		"notify_requeued_total",
		metric.WithDescription("Total notifications requeued due to an open circuit"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyQueueSize, err = meter.Int64Gauge(
		"notify_queue_size",
		metric.WithDescription("Current number of notifications queued (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Artifact metrics
	m.ArtifactFetchDuration, err = meter.Float64Histogram(
		"artifact_fetch_duration_seconds",
		metric.WithDescription("Artifact fetch latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ArtifactFetchesTotal, err = meter.Int64Counter(
		"artifact_fetches_total",
		metric.WithDescription("Total artifact fetches"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ArtifactCacheHits, err = meter.Int64Counter(
		"artifact_cache_hits_total",
		metric.WithDescription("Total fetches skipped because the artifact was already present"),
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

// RecordDriverSubmitted records a driver being accepted.
func (m *Metrics) RecordDriverSubmitted(ctx context.Context) {
	m.DriversTotal.Add(ctx, 1)
	m.DriversActive.Add(ctx, 1)
}

// RecordDriverLaunched records one driver process launch attempt.
func (m *Metrics) RecordDriverLaunched(ctx context.Context) {
	m.DriverLaunchesTotal.Add(ctx, 1)
}

// RecordDriverCompleted records a driver reaching a terminal state.
func (m *Metrics) RecordDriverCompleted(ctx context.Context, state driver.State, durationSeconds float64) {
	m.DriverDuration.Record(ctx, durationSeconds, metric.WithAttributes(stateAttr(state)))
	m.DriversActive.Add(ctx, -1)
}

// RecordNotifyDelivered records a successful notification delivery with its duration.
func (m *Metrics) RecordNotifyDelivered(ctx context.Context, durationSeconds float64) {
	m.NotifyDelivered.Add(ctx, 1)
	m.NotifyDuration.Record(ctx, durationSeconds)
}

// RecordNotifyFailed records a failed notification delivery.
func (m *Metrics) RecordNotifyFailed(ctx context.Context) {
	m.NotifyFailed.Add(ctx, 1)
}

// RecordNotifyDropped records a dropped notification.
func (m *Metrics) RecordNotifyDropped(ctx context.Context) {
	m.NotifyDropped.Add(ctx, 1)
}

// RecordNotifyRequeued records a requeued notification.
func (m *Metrics) RecordNotifyRequeued(ctx context.Context) {
	m.NotifyRequeued.Add(ctx, 1)
}

// RecordNotifyQueueSize records the current notify queue size.
func (m *Metrics) RecordNotifyQueueSize(ctx context.Context, size int64) {
	m.NotifyQueueSize.Record(ctx, size)
}

// RecordArtifactFetch records an artifact being fetched.
func (m *Metrics) RecordArtifactFetch(ctx context.Context, scheme string, durationSeconds float64) {
	attrs := metric.WithAttributes(schemeAttr(scheme))
	m.ArtifactFetchesTotal.Add(ctx, 1, attrs)
	m.ArtifactFetchDuration.Record(ctx, durationSeconds, attrs)
}

// RecordArtifactCacheHit records a fetch skipped because the artifact was
// already on disk.
func (m *Metrics) RecordArtifactCacheHit(ctx context.Context) {
	m.ArtifactCacheHits.Add(ctx, 1)
}
