package filter

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"filterq/internal/dbexec"
	"filterq/internal/entity"
	"filterq/internal/sqlutil"
)

// SQLQuery is a compiled parameterized statement.
type SQLQuery struct {
	SQL  string
	Args []any
}

// Engine compiles filter input against one entity descriptor and executes
// the resulting statements. An Engine is immutable after construction and
// safe for concurrent use.
type Engine struct {
	desc    *entity.Descriptor
	cfg     Config
	allowed map[string]struct{}
}

// NewEngine builds an engine for one entity. When cfg.AllowedFields is
// empty every descriptor field is filterable; otherwise the allow-list is
// intersected with the descriptor's fields.
func NewEngine(desc *entity.Descriptor, cfg Config) *Engine {
	allowed := desc.FieldNames()
	if len(cfg.AllowedFields) > 0 {
		subset := make(map[string]struct{}, len(cfg.AllowedFields))
		for _, name := range cfg.AllowedFields {
			if _, ok := allowed[name]; ok {
				subset[name] = struct{}{}
			}
		}
		allowed = subset
	}
	return &Engine{desc: desc, cfg: cfg, allowed: allowed}
}

// Entity returns the descriptor this engine filters.
func (e *Engine) Entity() *entity.Descriptor { return e.desc }

// AllowedFields returns the effective allow-list, sorted.
func (e *Engine) AllowedFields() []string {
	names := make([]string, 0, len(e.allowed))
	for name := range e.allowed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) authorize(name string) (entity.Column, bool) {
	if _, ok := e.allowed[name]; !ok {
		return entity.Column{}, false
	}
	return e.desc.Lookup(name)
}

// Compile translates a query into a data statement and a count statement.
// Both share identical predicates; the count statement is derived from the
// filtered set before ordering and pagination apply, so the total is
// independent of the requested page. Conditions naming fields outside the
// allow-list are dropped.
func (e *Engine) Compile(q *Query) (data SQLQuery, count SQLQuery, err error) {
	table := sqlutil.QuoteIdentifier(e.desc.Table)

	columns := make([]string, len(e.desc.Columns))
	for i, col := range e.desc.Columns {
		columns[i] = sqlutil.QuoteIdentifier(col.Name)
	}

	base := sq.Select(columns...).From(table)
	for _, group := range q.Groups {
		pred := e.groupPredicate(group)
		if pred != nil {
			base = base.Where(pred)
		}
	}

	countSQL, countArgs, err := sq.Select("COUNT(*)").
		FromSelect(base, "__count").
		ToSql()
	if err != nil {
		return SQLQuery{}, SQLQuery{}, fmt.Errorf("building count query: %w", err)
	}

	if order, ok := e.orderClause(q.OrderBy, q.Desc); ok {
		base = base.OrderBy(order)
	}
	base = base.Offset(uint64(q.Offset)).Limit(uint64(e.clampLimit(q.Limit)))

	dataSQL, dataArgs, err := base.ToSql()
	if err != nil {
		return SQLQuery{}, SQLQuery{}, fmt.Errorf("building data query: %w", err)
	}

	return SQLQuery{SQL: dataSQL, Args: dataArgs},
		SQLQuery{SQL: countSQL, Args: countArgs},
		nil
}

// groupPredicate combines a group's authorized conditions under its boolean
// operator. Returns nil when no condition survives authorization.
func (e *Engine) groupPredicate(group Group) sq.Sqlizer {
	var preds []sq.Sqlizer
	for _, cond := range group.Filters {
		col, ok := e.authorize(cond.Name)
		if !ok {
			continue
		}
		preds = append(preds, e.conditionPredicate(cond, col))
	}
	switch {
	case len(preds) == 0:
		return nil
	case len(preds) == 1:
		return preds[0]
	case group.Op == BoolOr:
		return sq.Or(preds)
	default:
		return sq.And(preds)
	}
}

func (e *Engine) conditionPredicate(cond Condition, col entity.Column) sq.Sqlizer {
	declared := cond.Type
	if declared == "" {
		declared = string(col.Type)
	}
	value := Coerce(cond.Value, declared)
	return cond.Op.Apply(sqlutil.QuoteIdentifier(col.Name), value)
}

// orderClause resolves the sort column, falling back to the configured
// default when the request names none or names a field it may not sort on.
// The allow-list governs sorting as well as filtering; an unauthorized sort
// field would otherwise leak ordering information about restricted columns.
// The default sorts ascending.
func (e *Engine) orderClause(orderBy string, desc bool) (string, bool) {
	if orderBy != "" {
		if col, ok := e.authorize(orderBy); ok {
			return sqlutil.QuoteIdentifier(col.Name) + direction(desc), true
		}
	}
	if e.cfg.DefaultOrderBy != "" {
		if col, ok := e.authorize(e.cfg.DefaultOrderBy); ok {
			return sqlutil.QuoteIdentifier(col.Name) + " ASC", true
		}
	}
	return "", false
}

func direction(desc bool) string {
	if desc {
		return " DESC"
	}
	return " ASC"
}

func (e *Engine) clampLimit(limit int) int {
	if limit <= 0 {
		return e.cfg.defaultLimit()
	}
	if max := e.cfg.maxLimit(); limit > max {
		return max
	}
	return limit
}

// FilterByQuery executes a pre-validated query object. Conditions naming
// unauthorized fields are dropped rather than rejected; this entry point
// serves trusted in-process callers that assemble queries programmatically.
func (e *Engine) FilterByQuery(ctx context.Context, exec dbexec.QueryExecutor, q *Query) (*Result, error) {
	return e.run(ctx, exec, q)
}

// FilterByParams validates and executes the flat parameter shape. Unlike
// FilterByQuery this entry point is strict: every field outside the
// allow-list is collected and reported in one UnauthorizedFieldsError, and
// no statement reaches storage when any field is rejected.
func (e *Engine) FilterByParams(ctx context.Context, exec dbexec.QueryExecutor, p *FlatParams) (*Result, error) {
	q, err := e.paramsToQuery(p)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, exec, q)
}

// paramsToQuery converts the flat shape into the grouped grammar,
// authorizing every named field first.
func (e *Engine) paramsToQuery(p *FlatParams) (*Query, error) {
	var unauthorized []string
	seen := make(map[string]struct{})
	reject := func(name string) {
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		unauthorized = append(unauthorized, name)
	}

	q := &Query{
		Offset:  p.Offset,
		Limit:   p.Limit,
		OrderBy: p.OrderBy,
		Desc:    p.IsDesc(),
	}

	if len(p.Simple) > 0 {
		keys := make([]string, 0, len(p.Simple))
		for key := range p.Simple {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		group := Group{Op: BoolAnd}
		for _, key := range keys {
			if _, ok := e.authorize(key); !ok {
				reject(key)
				continue
			}
			group.Filters = append(group.Filters, Condition{Name: key, Op: OpEq, Value: p.Simple[key]})
		}
		q.Groups = append(q.Groups, group)
	}

	for _, adv := range p.Advanced {
		group := Group{Op: adv.Operator}
		for _, item := range adv.Items {
			if _, ok := e.authorize(item.Name); !ok {
				reject(item.Name)
				continue
			}
			group.Filters = append(group.Filters, item)
		}
		q.Groups = append(q.Groups, group)
	}

	if len(unauthorized) > 0 {
		sort.Strings(unauthorized)
		return nil, &UnauthorizedFieldsError{Fields: unauthorized}
	}
	return q, nil
}

// Reserved query-string keys recognized by FilterByURL; anything else is
// treated as a field equality filter.
const (
	urlKeyOffset    = "offset"
	urlKeyLimit     = "limit"
	urlKeyOrderBy   = "order_by"
	urlKeyAscending = "ascending"
)

// FilterByURL executes a filter assembled from URL query parameters.
// Non-reserved keys become equality conditions, or membership conditions
// when a key repeats. Keys naming unauthorized fields are dropped.
func (e *Engine) FilterByURL(ctx context.Context, exec dbexec.QueryExecutor, values url.Values) (*Result, error) {
	verr := &ValidationError{}
	q := &Query{Limit: DefaultLimit}

	group := Group{Op: BoolAnd}
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		switch key {
		case urlKeyOffset:
			if n, err := strconv.Atoi(vals[0]); err != nil || n < 0 {
				verr.add("offset must be a non-negative integer, got %q", vals[0])
			} else {
				q.Offset = n
			}
		case urlKeyLimit:
			if n, err := strconv.Atoi(vals[0]); err != nil || n < 1 || n > MaxLimit {
				verr.add("limit must be an integer between 1 and %d, got %q", MaxLimit, vals[0])
			} else {
				q.Limit = n
			}
		case urlKeyOrderBy:
			name := strings.TrimSpace(vals[0])
			if name != "" && !sqlutil.ValidIdentifier(name) {
				verr.add("invalid characters in order_by %q", name)
			} else {
				q.OrderBy = name
			}
		case urlKeyAscending:
			switch vals[0] {
			case "0":
				q.Desc = true
			case "1":
				q.Desc = false
			default:
				verr.add("ascending must be 0 or 1, got %q", vals[0])
			}
		default:
			if !sqlutil.ValidIdentifier(key) {
				continue
			}
			cond := Condition{Name: key, Op: OpEq, Value: vals[0]}
			if len(vals) > 1 {
				cond.Op = OpIn
				list := make([]any, len(vals))
				for i, v := range vals {
					list[i] = v
				}
				cond.Value = list
			}
			group.Filters = append(group.Filters, cond)
		}
	}
	if err := verr.or(); err != nil {
		return nil, err
	}

	if len(group.Filters) > 0 {
		q.Groups = append(q.Groups, group)
	}
	return e.run(ctx, exec, q)
}

// QuickFilter executes a simple conjunctive equality filter with default
// pagination. Unauthorized fields are dropped.
func (e *Engine) QuickFilter(ctx context.Context, exec dbexec.QueryExecutor, fields map[string]any) (*Result, error) {
	q := &Query{Limit: DefaultLimit}
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for key := range fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		group := Group{Op: BoolAnd}
		for _, key := range keys {
			group.Filters = append(group.Filters, Condition{Name: key, Op: OpEq, Value: fields[key]})
		}
		q.Groups = append(q.Groups, group)
	}
	return e.run(ctx, exec, q)
}

// Paginate returns one unfiltered page using 1-based page numbers. A
// non-positive size falls back to the default page size. Sorting follows
// the same authorization and fallback rules as the filter entry points.
func (e *Engine) Paginate(ctx context.Context, exec dbexec.QueryExecutor, page, size int, orderBy string, desc bool) (*Result, error) {
	if page < 1 {
		return nil, &ValidationError{Messages: []string{fmt.Sprintf("page must be >= 1, got %d", page)}}
	}
	if size <= 0 {
		size = e.cfg.defaultLimit()
	}
	if size > e.cfg.maxLimit() {
		return nil, &ValidationError{Messages: []string{fmt.Sprintf("page size must be at most %d, got %d", e.cfg.maxLimit(), size)}}
	}
	q := &Query{Offset: (page - 1) * size, Limit: size, OrderBy: orderBy, Desc: desc}
	return e.run(ctx, exec, q)
}

// run compiles and executes the count and data statements on one executor.
// Callers that need the total and the page to agree under concurrent writes
// pass a transaction-scoped executor.
func (e *Engine) run(ctx context.Context, exec dbexec.QueryExecutor, q *Query) (*Result, error) {
	data, count, err := e.Compile(q)
	if err != nil {
		return nil, err
	}

	total, err := e.queryTotal(ctx, exec, count)
	if err != nil {
		return nil, err
	}

	items, err := e.queryItems(ctx, exec, data)
	if err != nil {
		return nil, err
	}

	return &Result{Items: items, Total: total}, nil
}

func (e *Engine) queryTotal(ctx context.Context, exec dbexec.QueryExecutor, count SQLQuery) (int64, error) {
	rows, err := exec.QueryContext(ctx, count.SQL, count.Args...)
	if err != nil {
		return 0, fmt.Errorf("executing count query: %w", err)
	}
	defer rows.Close()

	var total int64
	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			return 0, fmt.Errorf("scanning count: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("reading count: %w", err)
	}
	return total, nil
}

func (e *Engine) queryItems(ctx context.Context, exec dbexec.QueryExecutor, data SQLQuery) ([]map[string]any, error) {
	rows, err := exec.QueryContext(ctx, data.SQL, data.Args...)
	if err != nil {
		return nil, fmt.Errorf("executing data query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	items := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		item := make(map[string]any, len(cols))
		for i, col := range cols {
			item[col] = normalizeValue(values[i])
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}
	return items, nil
}

// normalizeValue converts driver byte slices to strings so results
// serialize as JSON text rather than base64.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
