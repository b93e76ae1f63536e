package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueryDefaults(t *testing.T) {
	q, err := ParseQuery([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 0, q.Offset)
	assert.Equal(t, DefaultLimit, q.Limit)
	assert.Equal(t, "", q.OrderBy)
	assert.False(t, q.Desc)
	assert.Empty(t, q.Groups)
}

func TestParseQueryFull(t *testing.T) {
	raw := []byte(`{
		"offset": 10,
		"limit": 25,
		"order_by": "created_at",
		"desc": true,
		"groups": [
			{"op": "and", "filters": [
				{"name": "age", "op": ">=", "value": 21},
				{"name": "status", "value": "active"}
			]},
			{"op": "OR", "filters": [
				{"name": "country", "op": "in", "value": ["fr", "de"]}
			]}
		]
	}`)

	q, err := ParseQuery(raw)
	require.NoError(t, err)
	assert.Equal(t, 10, q.Offset)
	assert.Equal(t, 25, q.Limit)
	assert.Equal(t, "created_at", q.OrderBy)
	assert.True(t, q.Desc)

	require.Len(t, q.Groups, 2)
	assert.Equal(t, BoolAnd, q.Groups[0].Op)
	require.Len(t, q.Groups[0].Filters, 2)
	assert.Equal(t, Condition{Name: "age", Op: OpGte, Value: float64(21)}, q.Groups[0].Filters[0])
	assert.Equal(t, OpEq, q.Groups[0].Filters[1].Op, "missing op defaults to equality")
	assert.Equal(t, BoolOr, q.Groups[1].Op)
	assert.Equal(t, []any{"fr", "de"}, q.Groups[1].Filters[0].Value)
}

func TestParseQueryGroupOpSpellings(t *testing.T) {
	for spelling, want := range map[string]BoolOp{
		"and": BoolAnd, "AND": BoolAnd, "all": BoolAnd,
		"or": BoolOr, "OR": BoolOr, "any": BoolOr,
	} {
		raw := []byte(`{"groups": [{"op": "` + spelling + `", "filters": [{"name": "a", "value": 1}]}]}`)
		q, err := ParseQuery(raw)
		require.NoError(t, err, "spelling %q", spelling)
		assert.Equal(t, want, q.Groups[0].Op, "spelling %q", spelling)
	}
}

func TestParseQueryMissingGroupOpDefaultsToAnd(t *testing.T) {
	q, err := ParseQuery([]byte(`{"groups": [{"filters": [{"name": "a", "value": 1}]}]}`))
	require.NoError(t, err)
	assert.Equal(t, BoolAnd, q.Groups[0].Op)
}

func TestParseQueryTrimsConditionName(t *testing.T) {
	q, err := ParseQuery([]byte(`{"groups": [{"filters": [{"name": "  age ", "value": 1}]}]}`))
	require.NoError(t, err)
	assert.Equal(t, "age", q.Groups[0].Filters[0].Name)
}

func TestParseQueryCollectsAllViolations(t *testing.T) {
	raw := []byte(`{
		"offset": -1,
		"limit": 5000,
		"order_by": "name; DROP TABLE users",
		"groups": [
			{"op": "xor", "filters": []},
			{"filters": [
				{"name": "", "value": 1},
				{"name": "age", "op": "between", "value": 1},
				{"name": "status"}
			]}
		]
	}`)

	_, err := ParseQuery(raw)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	joined := verr.Error()
	assert.Contains(t, joined, "offset must be >= 0")
	assert.Contains(t, joined, "limit must be between 1 and 1000")
	assert.Contains(t, joined, "order_by")
	assert.Contains(t, joined, `unsupported group operator "xor"`)
	assert.Contains(t, joined, "filters must be a non-empty list")
	assert.Contains(t, joined, "field name must not be empty")
	assert.Contains(t, joined, `unsupported operator "between"`)
	assert.Contains(t, joined, "value is required")
	assert.GreaterOrEqual(t, len(verr.Messages), 8)
}

func TestParseQueryRejectsNullValue(t *testing.T) {
	_, err := ParseQuery([]byte(`{"groups": [{"filters": [{"name": "a", "value": null}]}]}`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "value must not be null")
}

func TestParseQueryRejectsUnknownDeclaredType(t *testing.T) {
	_, err := ParseQuery([]byte(`{"groups": [{"filters": [{"name": "a", "value": "x", "type": "uuid"}]}]}`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), `unknown declared type "uuid"`)
}

func TestParseQueryLimitBounds(t *testing.T) {
	_, err := ParseQuery([]byte(`{"limit": 0}`))
	require.Error(t, err)

	q, err := ParseQuery([]byte(`{"limit": 1000}`))
	require.NoError(t, err)
	assert.Equal(t, 1000, q.Limit)

	_, err = ParseQuery([]byte(`{"limit": 1001}`))
	require.Error(t, err)
}

func TestParseParamsDefaults(t *testing.T) {
	p, err := ParseParams([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 0, p.Offset)
	assert.Equal(t, DefaultLimit, p.Limit)
	assert.Equal(t, 1, p.Ascending)
	assert.False(t, p.IsDesc())
	assert.False(t, p.HasAnyFilters())
}

func TestParseParamsSimpleFilters(t *testing.T) {
	p, err := ParseParams([]byte(`{"filters": {"status": "active", "age": 30}}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status": "active", "age": float64(30)}, p.Simple)
	assert.Empty(t, p.Advanced)
	assert.True(t, p.HasAnyFilters())
}

func TestParseParamsListFiltersNormalizeToAdvanced(t *testing.T) {
	raw := []byte(`{
		"filters": [
			{"operator": "or", "items": [
				{"name": "status", "value": "active"},
				{"name": "status", "value": "pending"}
			]}
		]
	}`)

	p, err := ParseParams(raw)
	require.NoError(t, err)
	assert.Empty(t, p.Simple, "list form never populates the simple mapping")
	require.Len(t, p.Advanced, 1)
	assert.Equal(t, BoolOr, p.Advanced[0].Operator)
	assert.Len(t, p.Advanced[0].Items, 2)
}

func TestParseParamsListFiltersAppendAfterExistingAdvanced(t *testing.T) {
	raw := []byte(`{
		"advanced_filters": [
			{"operator": "and", "items": [{"name": "a", "value": 1}]}
		],
		"filters": [
			{"operator": "or", "items": [{"name": "b", "value": 2}]}
		]
	}`)

	p, err := ParseParams(raw)
	require.NoError(t, err)
	require.Len(t, p.Advanced, 2)
	assert.Equal(t, "a", p.Advanced[0].Items[0].Name)
	assert.Equal(t, "b", p.Advanced[1].Items[0].Name)
}

func TestParseParamsAdvancedItemSpellings(t *testing.T) {
	raw := []byte(`{
		"advanced_filters": [
			{"operator": "and", "items": [
				{"name": "age", "operator": "gte", "value": "21", "data_type": "int"}
			]}
		]
	}`)

	p, err := ParseParams(raw)
	require.NoError(t, err)
	item := p.Advanced[0].Items[0]
	assert.Equal(t, OpGte, item.Op)
	assert.Equal(t, "int", item.Type)
}

func TestParseParamsUnknownGroupOperatorDegradesToOr(t *testing.T) {
	raw := []byte(`{"advanced_filters": [{"operator": "nand", "items": [{"name": "a", "value": 1}]}]}`)
	p, err := ParseParams(raw)
	require.NoError(t, err)
	assert.Equal(t, BoolOr, p.Advanced[0].Operator)
}

func TestParseParamsListFiltersShapeViolations(t *testing.T) {
	raw := []byte(`{
		"filters": [
			{"items": [{"name": "a", "value": 1}]},
			{"operator": "and"},
			{"operator": "and", "items": []},
			{"operator": "and", "items": [{"value": 1}, {"name": "b"}]}
		]
	}`)

	_, err := ParseParams(raw)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	joined := verr.Error()
	assert.Contains(t, joined, `filters[0]: missing required key "operator"`)
	assert.Contains(t, joined, `filters[1]: missing required key "items"`)
	assert.Contains(t, joined, "filters[2]: items must be a non-empty list")
	assert.Contains(t, joined, "filters[3].items[0]: field name must not be empty")
	assert.Contains(t, joined, "filters[3].items[1]: value is required")
}

func TestParseParamsSimpleFilterNullValue(t *testing.T) {
	_, err := ParseParams([]byte(`{"filters": {"status": null}}`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), `value for field "status" must not be null`)
}

func TestParseParamsFiltersWrongShape(t *testing.T) {
	_, err := ParseParams([]byte(`{"filters": "status=active"}`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "filters must be an object or a list of groups")
}

func TestParseParamsAscendingBounds(t *testing.T) {
	p, err := ParseParams([]byte(`{"ascending": 0}`))
	require.NoError(t, err)
	assert.True(t, p.IsDesc())

	_, err = ParseParams([]byte(`{"ascending": 2}`))
	require.Error(t, err)
}

func TestParseQueryMalformedJSON(t *testing.T) {
	_, err := ParseQuery([]byte(`{"groups": [`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}
