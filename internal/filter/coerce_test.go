package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceInt(t *testing.T) {
	assert.Equal(t, int64(42), Coerce("42", "int"))
	assert.Equal(t, int64(42), Coerce(42.0, "int"))
	assert.Equal(t, int64(42), Coerce(42, "int"))
	assert.Equal(t, int64(7), Coerce(" 7 ", "int"))
}

func TestCoerceFloat(t *testing.T) {
	assert.Equal(t, 3.5, Coerce("3.5", "float"))
	assert.Equal(t, 3.0, Coerce(3, "float"))
}

func TestCoerceString(t *testing.T) {
	assert.Equal(t, "42", Coerce(42, "string"))
	assert.Equal(t, "true", Coerce(true, "string"))
}

func TestCoerceBool(t *testing.T) {
	for _, truthy := range []any{"true", "TRUE", "1", 1, "yes", "Yes", "on", "ON", true} {
		assert.Equal(t, true, Coerce(truthy, "bool"), "value %v", truthy)
	}
	for _, falsy := range []any{"false", "0", 0, "no", "off", "anything", false} {
		assert.Equal(t, false, Coerce(falsy, "bool"), "value %v", falsy)
	}
}

func TestCoerceDate(t *testing.T) {
	got := Coerce("2024-06-01T12:30:00Z", "date")
	ts, ok := got.(time.Time)
	require.True(t, ok, "expected time.Time, got %T", got)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC), ts.UTC())
}

func TestCoerceDateOnly(t *testing.T) {
	got := Coerce("2024-06-01", "date")
	ts, ok := got.(time.Time)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), ts.UTC())
}

func TestCoerceDateExplicitOffset(t *testing.T) {
	got := Coerce("2024-06-01T12:30:00+02:00", "date")
	ts, ok := got.(time.Time)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC), ts.UTC())
}

func TestCoerceListElementwise(t *testing.T) {
	got := Coerce([]any{"1", 2.0, 3}, "int")
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, got)
}

func TestCoerceFailureFallsBackToRaw(t *testing.T) {
	assert.Equal(t, "not a number", Coerce("not a number", "int"))
	assert.Equal(t, "not a date", Coerce("not a date", "date"))
	assert.Equal(t, "1.2.3", Coerce("1.2.3", "float"))
}

func TestCoerceNoDeclaredType(t *testing.T) {
	assert.Equal(t, "raw", Coerce("raw", ""))
	assert.Nil(t, Coerce(nil, "int"))
}

func TestCoerceUnknownDeclaredType(t *testing.T) {
	assert.Equal(t, "raw", Coerce("raw", "uuid"))
}

func TestValidDeclaredType(t *testing.T) {
	for _, valid := range []string{"", "string", "int", "float", "bool", "date"} {
		assert.True(t, ValidDeclaredType(valid), "type %q", valid)
	}
	for _, invalid := range []string{"uuid", "Str", "datetime", "integer"} {
		assert.False(t, ValidDeclaredType(invalid), "type %q", invalid)
	}
}
