package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// FilterMetrics holds custom metrics for filter query execution.
type FilterMetrics struct {
	queryDuration metric.Float64Histogram
	queryCounter  metric.Int64Counter
	errorCounter  metric.Int64Counter
	activeQueries metric.Int64UpDownCounter
	resultRows    metric.Int64Histogram
	matchedTotal  metric.Int64Histogram
}

// InitFilterMetrics registers the filter query instruments on the global
// meter.
func InitFilterMetrics() (*FilterMetrics, error) {
	meter := otel.Meter("filterq")

	queryDuration, err := meter.Float64Histogram(
		"filter.query.duration",
		metric.WithDescription("Duration of filter query execution in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating query duration histogram: %w", err)
	}

	queryCounter, err := meter.Int64Counter(
		"filter.queries.total",
		metric.WithDescription("Total number of filter queries"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating query counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"filter.errors.total",
		metric.WithDescription("Total number of failed filter queries"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating error counter: %w", err)
	}

	activeQueries, err := meter.Int64UpDownCounter(
		"filter.queries.active",
		metric.WithDescription("Number of filter queries currently executing"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating active queries counter: %w", err)
	}

	resultRows, err := meter.Int64Histogram(
		"filter.results.rows",
		metric.WithDescription("Number of rows returned per filter query page"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating result rows histogram: %w", err)
	}

	matchedTotal, err := meter.Int64Histogram(
		"filter.results.matched",
		metric.WithDescription("Total rows matching the filter before pagination"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating matched total histogram: %w", err)
	}

	return &FilterMetrics{
		queryDuration: queryDuration,
		queryCounter:  queryCounter,
		errorCounter:  errorCounter,
		activeQueries: activeQueries,
		resultRows:    resultRows,
		matchedTotal:  matchedTotal,
	}, nil
}

// RecordQuery records one filter query with its duration and outcome. The
// entity and entry point label the series.
func (m *FilterMetrics) RecordQuery(ctx context.Context, entity, entryPoint string, duration time.Duration, failed bool) {
	attrs := []attribute.KeyValue{
		attribute.String("entity", entity),
		attribute.String("entry_point", entryPoint),
		attribute.Bool("failed", failed),
	}

	m.queryDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.queryCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	if failed {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("entity", entity),
			attribute.String("entry_point", entryPoint),
		))
	}
}

// RecordResult records the page size and matched total of a successful
// query.
func (m *FilterMetrics) RecordResult(ctx context.Context, entity string, rows, total int64) {
	attrs := metric.WithAttributes(attribute.String("entity", entity))
	m.resultRows.Record(ctx, rows, attrs)
	m.matchedTotal.Record(ctx, total, attrs)
}

// IncrementActive marks a query as started.
func (m *FilterMetrics) IncrementActive(ctx context.Context) {
	m.activeQueries.Add(ctx, 1)
}

// DecrementActive marks a query as finished.
func (m *FilterMetrics) DecrementActive(ctx context.Context) {
	m.activeQueries.Add(ctx, -1)
}
