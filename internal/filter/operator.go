package filter

import (
	"fmt"
	"reflect"

	sq "github.com/Masterminds/squirrel"
)

// Op identifies a comparison, membership, or pattern operator. The set is
// fixed at compile time; each operator owns a canonical symbol, a disjoint
// list of case-sensitive aliases, and a pure predicate constructor.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
	OpNotIn
	OpLike
	OpILike
)

type opSpec struct {
	symbol  string
	aliases []string
	build   func(column string, value any) sq.Sqlizer
}

// opTable is the operator registry, indexed by Op.
var opTable = [...]opSpec{
	OpEq: {"=", []string{"=", "eq"}, func(col string, v any) sq.Sqlizer {
		return sq.Eq{col: v}
	}},
	OpNe: {"!=", []string{"!=", "ne", "not_eq"}, func(col string, v any) sq.Sqlizer {
		return sq.NotEq{col: v}
	}},
	OpGt: {">", []string{">", "gt"}, func(col string, v any) sq.Sqlizer {
		return sq.Gt{col: v}
	}},
	OpGte: {">=", []string{">=", "gte", "ge"}, func(col string, v any) sq.Sqlizer {
		return sq.GtOrEq{col: v}
	}},
	OpLt: {"<", []string{"<", "lt"}, func(col string, v any) sq.Sqlizer {
		return sq.Lt{col: v}
	}},
	OpLte: {"<=", []string{"<=", "lte", "le"}, func(col string, v any) sq.Sqlizer {
		return sq.LtOrEq{col: v}
	}},
	OpIn: {"in", []string{"in", "IN"}, func(col string, v any) sq.Sqlizer {
		return sq.Eq{col: asList(v)}
	}},
	OpNotIn: {"not_in", []string{"not_in", "NOT_IN"}, func(col string, v any) sq.Sqlizer {
		return sq.NotEq{col: asList(v)}
	}},
	OpLike: {"like", []string{"like", "LIKE"}, func(col string, v any) sq.Sqlizer {
		return sq.Like{col: substringPattern(v)}
	}},
	// MySQL has no ILIKE keyword; lower both sides instead.
	OpILike: {"ilike", []string{"ilike", "ILIKE"}, func(col string, v any) sq.Sqlizer {
		return sq.Expr(fmt.Sprintf("LOWER(%s) LIKE LOWER(?)", col), substringPattern(v))
	}},
}

// String returns the canonical symbol.
func (op Op) String() string {
	if op < 0 || int(op) >= len(opTable) {
		return fmt.Sprintf("Op(%d)", int(op))
	}
	return opTable[op].symbol
}

// Apply builds the predicate for a quoted column reference and a value.
// It never fails: type mismatches surface from the storage engine, and
// coercion failures have already fallen back to the raw value.
func (op Op) Apply(column string, value any) sq.Sqlizer {
	if op < 0 || int(op) >= len(opTable) {
		return nil
	}
	return opTable[op].build(column, value)
}

// OpFromString resolves an operator by alias. Aliases are case-sensitive
// and disjoint across operators.
func OpFromString(alias string) (Op, error) {
	for op, spec := range opTable {
		for _, a := range spec.aliases {
			if a == alias {
				return Op(op), nil
			}
		}
	}
	return 0, &UnsupportedOperatorError{Alias: alias, Known: AllAliases()}
}

// AllAliases returns every accepted operator alias, in registry order.
func AllAliases() []string {
	var aliases []string
	for _, spec := range opTable {
		aliases = append(aliases, spec.aliases...)
	}
	return aliases
}

// asList normalizes a membership operand into an ordered sequence: scalars
// become single-element lists, slices pass through as []any. This is an
// operator rule, not the caller's job.
func asList(v any) []any {
	switch vv := v.(type) {
	case []any:
		return vv
	case nil:
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{v}
}

// substringPattern wraps a pattern value in wildcards on both sides.
// Matches are never anchored.
func substringPattern(v any) string {
	return fmt.Sprintf("%%%v%%", v)
}
