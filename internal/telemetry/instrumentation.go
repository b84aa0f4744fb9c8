package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attributes feed metric series, so keep them bounded: operation names, source
// kinds and status values only. Artifact names, URLs and paths belong in logs.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation wraps fn in a span tagged with component and operation.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)

	status := statusOf(err)
	if err != nil {
		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", time.Since(start).Seconds()),
	)

	return err
}

// InstrumentDBOperation instruments database operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "database", fn)

	t.RecordDBOperation(ctx, operation, statusOf(err), time.Since(start))

	return err
}

// InstrumentDaemonOperation instruments download daemon RPC calls.
func (t *Telemetry) InstrumentDaemonOperation(ctx context.Context, daemon, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	err := t.InstrumentOperation(ctx, "daemon_"+operation, "download_daemon", func(ctx context.Context) error {
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.String("daemon.type", daemon),
			attribute.String("daemon.operation", operation),
		)

		return fn(ctx)
	})

	t.RecordDaemonOperation(ctx, daemon, operation, statusOf(err))

	return err
}

// InstrumentArtifact instruments one artifact resolution across all of its sources.
// fn reports the kind of source that finally served the artifact.
func (t *Telemetry) InstrumentArtifact(ctx context.Context, fn func(ctx context.Context) (string, error)) error {
	if t == nil {
		_, err := fn(ctx)

		return err
	}

	start := time.Now()

	t.AddActiveArtifacts(ctx, 1)
	defer t.AddActiveArtifacts(ctx, -1)

	source := "none"
	err := t.InstrumentOperation(ctx, "artifact", "resolver", func(ctx context.Context) error {
		var err error

		source, err = fn(ctx)

		return err
	})

	t.RecordArtifact(ctx, source, statusOf(err), time.Since(start))

	return err
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}

	return "success"
}
