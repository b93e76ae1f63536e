// Package events publishes query audit events onto a Redis stream.
// Publishing is best-effort: a failed append is logged and dropped, never
// surfaced to the request that produced it.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"filterq/internal/config"
	"filterq/internal/logging"
)

// FilterEvent describes one executed filter query.
type FilterEvent struct {
	Entity     string
	EntryPoint string
	Total      int64
	Rows       int
	Duration   time.Duration
	RequestID  string
	OccurredAt time.Time
}

// Publisher appends filter events to a Redis stream.
type Publisher struct {
	client redis.UniversalClient
	stream string
	maxLen int64
	logger *logging.Logger
}

// NewPublisher connects to Redis and verifies the connection. A nil
// publisher is returned when events are disabled; its methods no-op.
func NewPublisher(ctx context.Context, cfg config.EventsConfig, logger *logging.Logger) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("event publisher connected",
		slog.String("addr", cfg.Addr),
		slog.String("stream", cfg.Stream))

	return &Publisher{
		client: client,
		stream: cfg.Stream,
		maxLen: cfg.MaxLen,
		logger: logger,
	}, nil
}

// Publish appends one event to the stream. Errors are logged, not
// returned.
func (p *Publisher) Publish(ctx context.Context, event FilterEvent) {
	if p == nil {
		return
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Approx: true,
		MaxLen: p.maxLen,
		Values: eventValues(ctx, event),
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		p.logger.Warn("failed to publish filter event",
			slog.String("entity", event.Entity),
			slog.String("error", err.Error()))
	}
}

// eventValues flattens an event into the stream entry field map, attaching
// the active trace ID when one is recorded.
func eventValues(ctx context.Context, event FilterEvent) map[string]any {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}

	values := map[string]any{
		"entity":      event.Entity,
		"entry_point": event.EntryPoint,
		"total":       strconv.FormatInt(event.Total, 10),
		"rows":        strconv.Itoa(event.Rows),
		"duration_ms": strconv.FormatInt(event.Duration.Milliseconds(), 10),
		"occurred_at": occurred.Format(time.RFC3339Nano),
	}
	if event.RequestID != "" {
		values["request_id"] = event.RequestID
	}
	if span := trace.SpanContextFromContext(ctx); span.HasTraceID() {
		values["trace_id"] = span.TraceID().String()
	}
	return values
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.client.Close()
}
