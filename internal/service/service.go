// Package service exposes filter query execution over a registry of
// configured entities. Each query runs inside a read-only transaction so
// the matched total and the returned page observe one snapshot, and every
// execution is traced, measured, and published to the audit stream.
package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"filterq/internal/config"
	"filterq/internal/dbexec"
	"filterq/internal/entity"
	"filterq/internal/events"
	"filterq/internal/filter"
	"filterq/internal/logging"
	"filterq/internal/observability"
)

// Entry point labels used in metrics and audit events.
const (
	EntryQuery    = "query"
	EntryParams   = "params"
	EntryURL      = "url"
	EntryQuick    = "quick"
	EntryPaginate = "paginate"
)

// UnknownEntityError reports a request for an entity the registry does not
// hold.
type UnknownEntityError struct {
	Name string
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("unknown entity %q", e.Name)
}

// FilterService routes filter queries to per-entity engines.
type FilterService struct {
	db      *sql.DB
	engines map[string]*filter.Engine
	metrics *observability.FilterMetrics
	events  *events.Publisher
	logger  *logging.Logger
	tracer  trace.Tracer
}

// Option configures optional service collaborators.
type Option func(*FilterService)

// WithMetrics records query metrics on the given instruments.
func WithMetrics(m *observability.FilterMetrics) Option {
	return func(s *FilterService) { s.metrics = m }
}

// WithEvents publishes an audit event per executed query.
func WithEvents(p *events.Publisher) Option {
	return func(s *FilterService) { s.events = p }
}

// New builds the engine registry from entity configuration.
func New(db *sql.DB, entities map[string]config.EntityConfig, logger *logging.Logger, opts ...Option) (*FilterService, error) {
	engines := make(map[string]*filter.Engine, len(entities))
	for name, ent := range entities {
		desc, err := descriptorFromConfig(name, ent)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", name, err)
		}
		engines[name] = filter.NewEngine(desc, filter.Config{
			AllowedFields:  ent.AllowedFields,
			DefaultLimit:   ent.DefaultLimit,
			MaxLimit:       ent.MaxLimit,
			DefaultOrderBy: ent.DefaultOrderBy,
		})
	}

	s := &FilterService{
		db:      db,
		engines: engines,
		logger:  logger,
		tracer:  otel.Tracer("filterq"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func descriptorFromConfig(name string, ent config.EntityConfig) (*entity.Descriptor, error) {
	table := ent.Table
	if table == "" {
		table = name
	}

	names := make([]string, 0, len(ent.Columns))
	for column := range ent.Columns {
		names = append(names, column)
	}
	sort.Strings(names)

	columns := make([]entity.Column, 0, len(names))
	for _, column := range names {
		columns = append(columns, entity.Column{
			Name: column,
			Type: entity.FieldType(ent.Columns[column]),
		})
	}
	return entity.New(name, table, columns)
}

// Entities returns the registered entity names, sorted.
func (s *FilterService) Entities() []string {
	names := make([]string, 0, len(s.engines))
	for name := range s.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Engine returns the engine for one entity.
func (s *FilterService) Engine(name string) (*filter.Engine, bool) {
	e, ok := s.engines[name]
	return e, ok
}

// FilterByQuery executes a pre-validated query object.
func (s *FilterService) FilterByQuery(ctx context.Context, entityName string, q *filter.Query) (*filter.Result, error) {
	return s.execute(ctx, entityName, EntryQuery, func(ctx context.Context, e *filter.Engine, exec dbexec.QueryExecutor) (*filter.Result, error) {
		return e.FilterByQuery(ctx, exec, q)
	})
}

// FilterByParams executes the flat parameter shape with strict field
// authorization.
func (s *FilterService) FilterByParams(ctx context.Context, entityName string, p *filter.FlatParams) (*filter.Result, error) {
	return s.execute(ctx, entityName, EntryParams, func(ctx context.Context, e *filter.Engine, exec dbexec.QueryExecutor) (*filter.Result, error) {
		return e.FilterByParams(ctx, exec, p)
	})
}

// FilterByURL executes a filter assembled from URL query parameters.
func (s *FilterService) FilterByURL(ctx context.Context, entityName string, values url.Values) (*filter.Result, error) {
	return s.execute(ctx, entityName, EntryURL, func(ctx context.Context, e *filter.Engine, exec dbexec.QueryExecutor) (*filter.Result, error) {
		return e.FilterByURL(ctx, exec, values)
	})
}

// QuickFilter executes a conjunctive equality filter.
func (s *FilterService) QuickFilter(ctx context.Context, entityName string, fields map[string]any) (*filter.Result, error) {
	return s.execute(ctx, entityName, EntryQuick, func(ctx context.Context, e *filter.Engine, exec dbexec.QueryExecutor) (*filter.Result, error) {
		return e.QuickFilter(ctx, exec, fields)
	})
}

// Paginate returns one unfiltered page using 1-based page numbers.
func (s *FilterService) Paginate(ctx context.Context, entityName string, page, size int, orderBy string, desc bool) (*filter.Result, error) {
	return s.execute(ctx, entityName, EntryPaginate, func(ctx context.Context, e *filter.Engine, exec dbexec.QueryExecutor) (*filter.Result, error) {
		return e.Paginate(ctx, exec, page, size, orderBy, desc)
	})
}

func (s *FilterService) execute(
	ctx context.Context,
	entityName, entryPoint string,
	fn func(ctx context.Context, e *filter.Engine, exec dbexec.QueryExecutor) (*filter.Result, error),
) (*filter.Result, error) {
	engine, ok := s.engines[entityName]
	if !ok {
		return nil, &UnknownEntityError{Name: entityName}
	}

	ctx, span := s.tracer.Start(ctx, "filter.query",
		trace.WithAttributes(
			attribute.String("filter.entity", entityName),
			attribute.String("filter.entry_point", entryPoint),
		))
	defer span.End()

	if s.metrics != nil {
		s.metrics.IncrementActive(ctx)
		defer s.metrics.DecrementActive(ctx)
	}

	start := time.Now()
	var result *filter.Result
	err := dbexec.InReadTx(ctx, s.db, func(exec dbexec.QueryExecutor) error {
		var runErr error
		result, runErr = fn(ctx, engine, exec)
		return runErr
	})
	elapsed := time.Since(start)

	if s.metrics != nil {
		s.metrics.RecordQuery(ctx, entityName, entryPoint, elapsed, err != nil)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.WithEntity(entityName).Warn("filter query failed",
			slog.String("entry_point", entryPoint),
			slog.String("error", err.Error()))
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("filter.total", result.Total),
		attribute.Int("filter.rows", len(result.Items)),
	)
	if s.metrics != nil {
		s.metrics.RecordResult(ctx, entityName, int64(len(result.Items)), result.Total)
	}
	s.events.Publish(ctx, events.FilterEvent{
		Entity:     entityName,
		EntryPoint: entryPoint,
		Total:      result.Total,
		Rows:       len(result.Items),
		Duration:   elapsed,
		RequestID:  logging.RequestID(ctx),
	})

	s.logger.WithEntity(entityName).Debug("filter query executed",
		slog.String("entry_point", entryPoint),
		slog.Int64("total", result.Total),
		slog.Int("rows", len(result.Items)),
		slog.Duration("duration", elapsed))

	return result, nil
}
