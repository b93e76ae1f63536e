// Package filter compiles declarative, JSON-serializable filter
// specifications into safe paginated SQL queries. The grammar is a list of
// condition groups (AND/OR) over typed field comparisons; the compiler
// authorizes field names against an allow-list, coerces values, and
// guarantees the count query and the data query observe identical
// predicates.
package filter

import (
	"encoding/json"
	"fmt"
	"strings"

	"filterq/internal/sqlutil"
)

const (
	// DefaultLimit is the page size used when the caller does not ask for one.
	DefaultLimit = 50
	// MaxLimit is the hard ceiling on page size.
	MaxLimit = 1000
)

// BoolOp combines the conditions of one group.
type BoolOp string

const (
	BoolAnd BoolOp = "and"
	BoolOr  BoolOp = "or"
)

// boolOpSpellings maps every accepted group-operator spelling to its
// normalized form.
var boolOpSpellings = map[string]BoolOp{
	"and": BoolAnd, "AND": BoolAnd, "all": BoolAnd,
	"or": BoolOr, "OR": BoolOr, "any": BoolOr,
}

// Condition is one field/operator/value comparison. Type optionally
// declares the semantic type the value should be coerced to.
type Condition struct {
	Name  string
	Op    Op
	Value any
	Type  string
}

// Group combines conditions with a single boolean operator.
type Group struct {
	Op      BoolOp
	Filters []Condition
}

// Query is the internal grammar: pagination, ordering, and condition
// groups. Groups are conjunctive with each other; conditions within a
// group share the group's operator.
type Query struct {
	Offset  int
	Limit   int
	OrderBy string
	Desc    bool
	Groups  []Group
}

// AdvancedGroup is the wire shape of one grouped filter in the flat
// parameter form.
type AdvancedGroup struct {
	Operator BoolOp
	Items    []Condition
}

// FlatParams is the alternate shallow input shape. After normalization the
// list-of-groups form of Filters has been moved into Advanced and Simple
// holds only the mapping form; the two are never interpreted from the same
// literal field.
type FlatParams struct {
	Offset    int
	Limit     int
	OrderBy   string
	Ascending int
	Simple    map[string]any
	Advanced  []AdvancedGroup
}

// IsDesc reports whether sorting should be descending.
func (p FlatParams) IsDesc() bool { return p.Ascending == 0 }

// HasAnyFilters reports whether any simple or advanced filters remain
// after normalization.
func (p FlatParams) HasAnyFilters() bool {
	return len(p.Simple) > 0 || len(p.Advanced) > 0
}

// Result is the response envelope. Total counts every row matching the
// filter predicates before pagination, independent of the returned page.
type Result struct {
	Items []map[string]any `json:"items"`
	Total int64            `json:"total"`
}

// Config is per-entity filtering policy. An empty AllowedFields falls back
// to the entity descriptor's introspected field set.
type Config struct {
	AllowedFields  []string
	DefaultLimit   int
	MaxLimit       int
	DefaultOrderBy string
}

func (c Config) defaultLimit() int {
	if c.DefaultLimit > 0 {
		return c.DefaultLimit
	}
	return DefaultLimit
}

func (c Config) maxLimit() int {
	if c.MaxLimit > 0 {
		return c.MaxLimit
	}
	return MaxLimit
}

// --- wire shapes ---

type conditionWire struct {
	Name     *string         `json:"name"`
	Op       *string         `json:"op"`
	Operator *string         `json:"operator"`
	Value    json.RawMessage `json:"value"`
	Type     *string         `json:"type"`
	DataType *string         `json:"data_type"`
}

type groupWire struct {
	Op      *string         `json:"op"`
	Filters []conditionWire `json:"filters"`
}

type queryWire struct {
	Offset  *int        `json:"offset"`
	Limit   *int        `json:"limit"`
	OrderBy *string     `json:"order_by"`
	Desc    *bool       `json:"desc"`
	Groups  []groupWire `json:"groups"`
}

type advancedWire struct {
	Operator *string         `json:"operator"`
	Items    []conditionWire `json:"items"`
}

type paramsWire struct {
	Offset          *int            `json:"offset"`
	Limit           *int            `json:"limit"`
	OrderBy         *string         `json:"order_by"`
	Ascending       *int            `json:"ascending"`
	Filters         json.RawMessage `json:"filters"`
	AdvancedFilters []advancedWire  `json:"advanced_filters"`
}

// ParseQuery deserializes and validates the grouped query shape. Every
// violated rule is reported; the parse does not stop at the first error.
func ParseQuery(data []byte) (*Query, error) {
	var wire queryWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &ValidationError{Messages: []string{err.Error()}}
	}
	return queryFromWire(wire)
}

func queryFromWire(wire queryWire) (*Query, error) {
	verr := &ValidationError{}
	q := &Query{Limit: DefaultLimit}

	parsePagination(wire.Offset, wire.Limit, &q.Offset, &q.Limit, verr)
	q.OrderBy = parseOrderBy(wire.OrderBy, verr)
	if wire.Desc != nil {
		q.Desc = *wire.Desc
	}

	for i, gw := range wire.Groups {
		group := parseGroup(gw, i, verr)
		q.Groups = append(q.Groups, group)
	}

	if err := verr.or(); err != nil {
		return nil, err
	}
	return q, nil
}

func parseGroup(gw groupWire, index int, verr *ValidationError) Group {
	group := Group{Op: BoolAnd}
	if gw.Op != nil {
		op, ok := boolOpSpellings[*gw.Op]
		if !ok {
			verr.add("groups[%d]: unsupported group operator %q", index, *gw.Op)
		} else {
			group.Op = op
		}
	}
	if len(gw.Filters) == 0 {
		verr.add("groups[%d]: filters must be a non-empty list", index)
	}
	for j, cw := range gw.Filters {
		cond, ok := parseCondition(cw, groupPath(index, j), verr)
		if ok {
			group.Filters = append(group.Filters, cond)
		}
	}
	return group
}

func groupPath(group, item int) string {
	return fmt.Sprintf("groups[%d].filters[%d]", group, item)
}

func parseCondition(cw conditionWire, path string, verr *ValidationError) (Condition, bool) {
	ok := true
	cond := Condition{Op: OpEq}

	if cw.Name == nil || strings.TrimSpace(*cw.Name) == "" {
		verr.add("%s: field name must not be empty", path)
		ok = false
	} else {
		name := strings.TrimSpace(*cw.Name)
		if !sqlutil.ValidIdentifier(name) {
			verr.add("%s: invalid characters in field name %q", path, name)
			ok = false
		}
		cond.Name = name
	}

	rawOp := cw.Op
	if rawOp == nil {
		rawOp = cw.Operator
	}
	if rawOp != nil {
		op, err := OpFromString(*rawOp)
		if err != nil {
			verr.add("%s: %s", path, err.Error())
			ok = false
		} else {
			cond.Op = op
		}
	}

	if len(cw.Value) == 0 {
		verr.add("%s: value is required", path)
		ok = false
	} else {
		var value any
		if err := json.Unmarshal(cw.Value, &value); err != nil {
			verr.add("%s: invalid value: %s", path, err.Error())
			ok = false
		} else if value == nil {
			verr.add("%s: value must not be null", path)
			ok = false
		} else {
			cond.Value = value
		}
	}

	declared := cw.Type
	if declared == nil {
		declared = cw.DataType
	}
	if declared != nil {
		if !ValidDeclaredType(*declared) {
			verr.add("%s: unknown declared type %q", path, *declared)
			ok = false
		} else {
			cond.Type = *declared
		}
	}

	return cond, ok
}

func parsePagination(offset, limit *int, outOffset, outLimit *int, verr *ValidationError) {
	if offset != nil {
		if *offset < 0 {
			verr.add("offset must be >= 0, got %d", *offset)
		} else {
			*outOffset = *offset
		}
	}
	if limit != nil {
		if *limit < 1 || *limit > MaxLimit {
			verr.add("limit must be between 1 and %d, got %d", MaxLimit, *limit)
		} else {
			*outLimit = *limit
		}
	}
}

func parseOrderBy(orderBy *string, verr *ValidationError) string {
	if orderBy == nil {
		return ""
	}
	name := strings.TrimSpace(*orderBy)
	if name == "" {
		return ""
	}
	if !sqlutil.ValidIdentifier(name) {
		verr.add("invalid characters in order_by %q", name)
		return ""
	}
	return name
}

// ParseParams deserializes, normalizes, and validates the flat parameter
// shape. Normalization is a pure transform: the list-of-groups form of
// "filters" is moved wholesale into the advanced filters and the simple
// mapping left empty.
func ParseParams(data []byte) (*FlatParams, error) {
	var wire paramsWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &ValidationError{Messages: []string{err.Error()}}
	}
	return paramsFromWire(wire)
}

func paramsFromWire(wire paramsWire) (*FlatParams, error) {
	verr := &ValidationError{}
	p := &FlatParams{Limit: DefaultLimit, Ascending: 1}

	parsePagination(wire.Offset, wire.Limit, &p.Offset, &p.Limit, verr)
	p.OrderBy = parseOrderBy(wire.OrderBy, verr)
	if wire.Ascending != nil {
		if *wire.Ascending != 0 && *wire.Ascending != 1 {
			verr.add("ascending must be 0 or 1, got %d", *wire.Ascending)
		} else {
			p.Ascending = *wire.Ascending
		}
	}

	for i, aw := range wire.AdvancedFilters {
		group, ok := parseAdvancedGroup(aw, "advanced_filters", i, verr)
		if ok {
			p.Advanced = append(p.Advanced, group)
		}
	}

	if len(wire.Filters) > 0 {
		parseFiltersField(wire.Filters, p, verr)
	}

	if err := verr.or(); err != nil {
		return nil, err
	}
	return p, nil
}

// parseFiltersField handles the polymorphic "filters" key: a mapping is
// the simple equality form, a list is the grouped form and normalizes into
// the advanced filters.
func parseFiltersField(raw json.RawMessage, p *FlatParams, verr *ValidationError) {
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case strings.HasPrefix(trimmed, "{"):
		var simple map[string]any
		if err := json.Unmarshal(raw, &simple); err != nil {
			verr.add("filters: %s", err.Error())
			return
		}
		for key, value := range simple {
			if strings.TrimSpace(key) == "" {
				verr.add("filters: keys must not be empty")
			}
			if value == nil {
				verr.add("filters: value for field %q must not be null", key)
			}
		}
		p.Simple = simple

	case strings.HasPrefix(trimmed, "["):
		var groups []advancedWire
		if err := json.Unmarshal(raw, &groups); err != nil {
			verr.add("filters: %s", err.Error())
			return
		}
		for i, aw := range groups {
			group, ok := parseAdvancedGroup(aw, "filters", i, verr)
			if ok {
				p.Advanced = append(p.Advanced, group)
			}
		}

	case trimmed == "null":
		// absent

	default:
		verr.add("filters must be an object or a list of groups")
	}
}

func parseAdvancedGroup(aw advancedWire, field string, index int, verr *ValidationError) (AdvancedGroup, bool) {
	ok := true
	group := AdvancedGroup{Operator: BoolAnd}

	if aw.Operator == nil {
		verr.add("%s[%d]: missing required key \"operator\"", field, index)
		ok = false
	} else {
		// Same spelling set as group ops; unknown spellings degrade to OR,
		// matching the original's and/all-else-or normalization.
		if op, known := boolOpSpellings[strings.ToLower(*aw.Operator)]; known {
			group.Operator = op
		} else {
			group.Operator = BoolOr
		}
	}

	if aw.Items == nil {
		verr.add("%s[%d]: missing required key \"items\"", field, index)
		ok = false
	} else if len(aw.Items) == 0 {
		verr.add("%s[%d]: items must be a non-empty list", field, index)
		ok = false
	}
	for j, cw := range aw.Items {
		path := fmt.Sprintf("%s[%d].items[%d]", field, index, j)
		cond, condOK := parseCondition(cw, path, verr)
		if condOK {
			group.Items = append(group.Items, cond)
		} else {
			ok = false
		}
	}

	return group, ok
}
