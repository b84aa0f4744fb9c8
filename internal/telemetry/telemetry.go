package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	runtimeinstr "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Telemetry holds all telemetry instruments and providers.
// A zero Telemetry (or a nil *Telemetry) is valid and records nothing.
type Telemetry struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	meter          metric.Meter
	registry       *promclient.Registry

	// RED Metrics (Rate, Errors, Duration)
	httpRequestsTotal    metric.Int64Counter
	httpRequestDuration  metric.Float64Histogram
	httpRequestsInFlight metric.Int64UpDownCounter

	// USE Metrics (Utilization, Saturation, Errors)
	memoryUsage    metric.Int64Gauge
	goroutineCount metric.Int64Gauge
	gateSlotsInUse metric.Int64UpDownCounter

	// Business Metrics
	artifactsTotal        metric.Int64Counter
	artifactsActive       metric.Int64UpDownCounter
	artifactDuration      metric.Float64Histogram
	attemptsTotal         metric.Int64Counter
	retriesTotal          metric.Int64Counter
	bytesDownloaded       metric.Int64Counter
	checksumMismatches    metric.Int64Counter
	hardlinksTotal        metric.Int64Counter
	daemonOperationsTotal metric.Int64Counter
	daemonErrors          metric.Int64Counter
	dbOperationsTotal     metric.Int64Counter
	dbOperationDuration   metric.Float64Histogram

	// System health
	systemErrors metric.Int64Counter
	systemUptime metric.Float64Gauge
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// OTLPEndpoint, when set, additionally pushes metrics over OTLP/gRPC.
	OTLPEndpoint string
}

// New creates a new telemetry instance.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	registry := promclient.NewRegistry()

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	}

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp metric exporter: %w", err)
		}

		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(otlpExporter)))
	}

	meterProvider := sdkmetric.NewMeterProvider(opts...)
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithResource(res))

	otel.SetMeterProvider(meterProvider)
	otel.SetTracerProvider(tracerProvider)

	t := &Telemetry{
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer(cfg.ServiceName),
		meter:          meterProvider.Meter(cfg.ServiceName),
		registry:       registry,
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := runtimeinstr.Start(runtimeinstr.WithMeterProvider(meterProvider)); err != nil {
		return nil, fmt.Errorf("failed to start runtime instrumentation: %w", err)
	}

	go t.collectSystemMetrics(ctx)

	return t, nil
}

// Tracer returns the OpenTelemetry tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	if t == nil || t.tracer == nil {
		return noop.NewTracerProvider().Tracer("")
	}

	return t.tracer
}

// RecordHTTPRequest records HTTP request metrics.
func (t *Telemetry) RecordHTTPRequest(ctx context.Context, method, path, status string, duration time.Duration) {
	if t == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", status),
	)

	if t.httpRequestsTotal != nil {
		t.httpRequestsTotal.Add(ctx, 1, attrs)
	}

	if t.httpRequestDuration != nil {
		t.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

// AddHTTPInFlight moves the in-flight HTTP request gauge by delta.
func (t *Telemetry) AddHTTPInFlight(ctx context.Context, delta int64) {
	if t != nil && t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(ctx, delta)
	}
}

// RecordArtifact records the final outcome of one artifact resolution.
func (t *Telemetry) RecordArtifact(ctx context.Context, source, status string, duration time.Duration) {
	if t == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("status", status),
	)

	if t.artifactsTotal != nil {
		t.artifactsTotal.Add(ctx, 1, attrs)
	}

	if t.artifactDuration != nil {
		t.artifactDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

// AddActiveArtifacts moves the active artifact resolution gauge by delta.
func (t *Telemetry) AddActiveArtifacts(ctx context.Context, delta int64) {
	if t != nil && t.artifactsActive != nil {
		t.artifactsActive.Add(ctx, delta)
	}
}

// AddGateSlots moves the concurrency gate occupancy gauge by delta.
func (t *Telemetry) AddGateSlots(ctx context.Context, delta int64) {
	if t != nil && t.gateSlotsInUse != nil {
		t.gateSlotsInUse.Add(ctx, delta)
	}
}

// RecordAttempt records one daemon job attempt and the bytes it moved.
func (t *Telemetry) RecordAttempt(ctx context.Context, outcome string, bytes int64) {
	if t == nil {
		return
	}

	if t.attemptsTotal != nil {
		t.attemptsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}

	if t.bytesDownloaded != nil && bytes > 0 {
		t.bytesDownloaded.Add(ctx, bytes)
	}
}

// RecordRetry records a retry wait; reset reports whether the budget was refilled.
func (t *Telemetry) RecordRetry(ctx context.Context, reset bool) {
	if t != nil && t.retriesTotal != nil {
		t.retriesTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("budget_reset", reset)))
	}
}

// RecordChecksumMismatch records an advisory checksum mismatch.
func (t *Telemetry) RecordChecksumMismatch(ctx context.Context) {
	if t != nil && t.checksumMismatches != nil {
		t.checksumMismatches.Add(ctx, 1)
	}
}

// RecordHardlink records one hardlink fan-out target.
func (t *Telemetry) RecordHardlink(ctx context.Context, status string) {
	if t != nil && t.hardlinksTotal != nil {
		t.hardlinksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

// RecordDaemonOperation records download daemon RPC metrics.
func (t *Telemetry) RecordDaemonOperation(ctx context.Context, daemon, operation, status string) {
	if t == nil {
		return
	}

	if t.daemonOperationsTotal != nil {
		t.daemonOperationsTotal.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("daemon", daemon),
				attribute.String("operation", operation),
				attribute.String("status", status),
			),
		)
	}

	if status == "error" && t.daemonErrors != nil {
		t.daemonErrors.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("daemon", daemon),
				attribute.String("operation", operation),
			),
		)
	}
}

// RecordDBOperation records database operation metrics.
func (t *Telemetry) RecordDBOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if t == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)

	if t.dbOperationsTotal != nil {
		t.dbOperationsTotal.Add(ctx, 1, attrs)
	}

	if t.dbOperationDuration != nil {
		t.dbOperationDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

// RecordSystemError records system error metrics.
func (t *Telemetry) RecordSystemError(ctx context.Context, component, errorType string) {
	if t != nil && t.systemErrors != nil {
		t.systemErrors.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("component", component),
				attribute.String("error_type", errorType),
			),
		)
	}
}

// Handler returns the HTTP handler for metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t == nil || t.registry == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	var errs []error

	if t.meterProvider != nil {
		errs = append(errs, t.meterProvider.Shutdown(ctx))
	}

	if t.tracerProvider != nil {
		errs = append(errs, t.tracerProvider.Shutdown(ctx))
	}

	return errors.Join(errs...)
}

// initializeMetrics creates all metric instruments.
func (t *Telemetry) initializeMetrics() error {
	if err := t.initializeREDMetrics(); err != nil {
		return err
	}

	if err := t.initializeUSEMetrics(); err != nil {
		return err
	}

	if err := t.initializeBusinessMetrics(); err != nil {
		return err
	}

	return t.initializeSystemMetrics()
}

func (t *Telemetry) initializeREDMetrics() error {
	var err error

	t.httpRequestsTotal, err = t.meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	t.httpRequestDuration, err = t.meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_duration histogram: %w", err)
	}

	t.httpRequestsInFlight, err = t.meter.Int64UpDownCounter(
		"http_requests_in_flight",
		metric.WithDescription("Number of HTTP requests currently being processed"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_in_flight counter: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeUSEMetrics() error {
	var err error

	t.memoryUsage, err = t.meter.Int64Gauge(
		"memory_usage_bytes",
		metric.WithDescription("Memory usage in bytes"),
		metric.WithUnit("bytes"),
	)
	if err != nil {
		return fmt.Errorf("failed to create memory_usage gauge: %w", err)
	}

	t.goroutineCount, err = t.meter.Int64Gauge(
		"goroutine_count",
		metric.WithDescription("Number of goroutines"),
		metric.WithUnit("{goroutine}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create goroutine_count gauge: %w", err)
	}

	t.gateSlotsInUse, err = t.meter.Int64UpDownCounter(
		"gate_slots_in_use",
		metric.WithDescription("Artifact resolutions currently holding a concurrency slot"),
		metric.WithUnit("{slot}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create gate_slots_in_use counter: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeBusinessMetrics() error {
	var err error

	t.artifactsTotal, err = t.meter.Int64Counter(
		"artifacts_total",
		metric.WithDescription("Total number of resolved artifacts"),
		metric.WithUnit("{artifact}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create artifacts_total counter: %w", err)
	}

	t.artifactsActive, err = t.meter.Int64UpDownCounter(
		"artifacts_active",
		metric.WithDescription("Number of artifact resolutions in progress"),
		metric.WithUnit("{artifact}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create artifacts_active counter: %w", err)
	}

	t.artifactDuration, err = t.meter.Float64Histogram(
		"artifact_duration_seconds",
		metric.WithDescription("Artifact resolution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create artifact_duration histogram: %w", err)
	}

	t.attemptsTotal, err = t.meter.Int64Counter(
		"transfer_attempts_total",
		metric.WithDescription("Total number of daemon job attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create transfer_attempts_total counter: %w", err)
	}

	t.retriesTotal, err = t.meter.Int64Counter(
		"transfer_retries_total",
		metric.WithDescription("Total number of retry waits"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create transfer_retries_total counter: %w", err)
	}

	t.bytesDownloaded, err = t.meter.Int64Counter(
		"downloaded_bytes_total",
		metric.WithDescription("Bytes reported complete by the download daemon"),
		metric.WithUnit("bytes"),
	)
	if err != nil {
		return fmt.Errorf("failed to create downloaded_bytes_total counter: %w", err)
	}

	t.checksumMismatches, err = t.meter.Int64Counter(
		"checksum_mismatches_total",
		metric.WithDescription("Downloads kept despite an MD5 mismatch"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create checksum_mismatches_total counter: %w", err)
	}

	t.hardlinksTotal, err = t.meter.Int64Counter(
		"hardlinks_total",
		metric.WithDescription("Hardlink fan-out targets by status"),
		metric.WithUnit("{link}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create hardlinks_total counter: %w", err)
	}

	t.daemonOperationsTotal, err = t.meter.Int64Counter(
		"daemon_operations_total",
		metric.WithDescription("Total number of download daemon RPC operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create daemon_operations_total counter: %w", err)
	}

	t.daemonErrors, err = t.meter.Int64Counter(
		"daemon_errors_total",
		metric.WithDescription("Total number of download daemon RPC errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create daemon_errors counter: %w", err)
	}

	t.dbOperationsTotal, err = t.meter.Int64Counter(
		"db_operations_total",
		metric.WithDescription("Total number of database operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create db_operations_total counter: %w", err)
	}

	t.dbOperationDuration, err = t.meter.Float64Histogram(
		"db_operation_duration_seconds",
		metric.WithDescription("Database operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create db_operation_duration histogram: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeSystemMetrics() error {
	var err error

	t.systemErrors, err = t.meter.Int64Counter(
		"system_errors_total",
		metric.WithDescription("Total number of system errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create system_errors counter: %w", err)
	}

	t.systemUptime, err = t.meter.Float64Gauge(
		"system_uptime_seconds",
		metric.WithDescription("System uptime in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create system_uptime gauge: %w", err)
	}

	return nil
}

// collectSystemMetrics collects system-level metrics periodically.
func (t *Telemetry) collectSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.updateSystemMetrics(ctx, startTime)
		}
	}
}

func (t *Telemetry) updateSystemMetrics(ctx context.Context, startTime time.Time) {
	var m runtime.MemStats

	runtime.ReadMemStats(&m)

	if t.memoryUsage != nil {
		t.memoryUsage.Record(ctx, int64(m.Alloc))
	}

	if t.goroutineCount != nil {
		t.goroutineCount.Record(ctx, int64(runtime.NumGoroutine()))
	}

	if t.systemUptime != nil {
		t.systemUptime.Record(ctx, time.Since(startTime).Seconds())
	}
}
