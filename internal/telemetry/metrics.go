package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "github.com/wolfeidau/eventdesk"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Session metrics
	AuthOperationsTotal metric.Int64Counter
	AuthErrorsTotal     metric.Int64Counter
	AuthDuration        metric.Float64Histogram
	SessionRefreshTotal metric.Int64Counter

	// Data access metrics
	DataOperationsTotal metric.Int64Counter
	DataErrorsTotal     metric.Int64Counter
	DataDuration        metric.Float64Histogram
	RowsReturned        metric.Int64Histogram

	// Web metrics
	BrowserContexts metric.Int64UpDownCounter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(instrumentationName)

	m := &Metrics{}

	m.AuthOperationsTotal, _ = meter.Int64Counter(
		"eventdesk.auth.operations.total",
		metric.WithDescription("Total number of session operations (sign in, sign up, sign out, refresh)"),
		metric.WithUnit("{operation}"),
	)

	m.AuthErrorsTotal, _ = meter.Int64Counter(
		"eventdesk.auth.errors.total",
		metric.WithDescription("Total number of failed session operations by error kind"),
		metric.WithUnit("{error}"),
	)

	m.AuthDuration, _ = meter.Float64Histogram(
		"eventdesk.auth.duration",
		metric.WithDescription("Duration of session operations"),
		metric.WithUnit("ms"),
	)

	m.SessionRefreshTotal, _ = meter.Int64Counter(
		"eventdesk.auth.refresh.total",
		metric.WithDescription("Total number of access token refreshes"),
		metric.WithUnit("{refresh}"),
	)

	m.DataOperationsTotal, _ = meter.Int64Counter(
		"eventdesk.data.operations.total",
		metric.WithDescription("Total number of record store operations"),
		metric.WithUnit("{operation}"),
	)

	m.DataErrorsTotal, _ = meter.Int64Counter(
		"eventdesk.data.errors.total",
		metric.WithDescription("Total number of failed record store operations by error kind"),
		metric.WithUnit("{error}"),
	)

	m.DataDuration, _ = meter.Float64Histogram(
		"eventdesk.data.duration",
		metric.WithDescription("Duration of record store operations"),
		metric.WithUnit("ms"),
	)

	m.RowsReturned, _ = meter.Int64Histogram(
		"eventdesk.data.rows",
		metric.WithDescription("Rows returned by record store reads"),
		metric.WithUnit("{row}"),
	)

	m.BrowserContexts, _ = meter.Int64UpDownCounter(
		"eventdesk.web.browser_contexts.active",
		metric.WithDescription("Number of live browser contexts holding a session client"),
		metric.WithUnit("{context}"),
	)

	return m
}

// RecordAuth records the outcome of a session operation.
func (m *Metrics) RecordAuth(ctx context.Context, op string, started time.Time, errKind string) {
	opAttr := metric.WithAttributes(attribute.String("operation", op))
	m.AuthOperationsTotal.Add(ctx, 1, opAttr)
	m.AuthDuration.Record(ctx, float64(time.Since(started).Milliseconds()), opAttr)
	if errKind != "" {
		m.AuthErrorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("kind", errKind),
		))
	}
}

// RecordData records the outcome of a record store operation.
func (m *Metrics) RecordData(ctx context.Context, op, table string, started time.Time, errKind string) {
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("table", table),
	)
	m.DataOperationsTotal.Add(ctx, 1, attrs)
	m.DataDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)
	if errKind != "" {
		m.DataErrorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("table", table),
			attribute.String("kind", errKind),
		))
	}
}
