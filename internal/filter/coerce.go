package filter

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Coerce converts a raw value to the declared semantic type. Coercion is
// best-effort: any failure returns the raw value unchanged and the storage
// engine gets to complain about the type instead.
func Coerce(value any, declared string) any {
	if declared == "" || value == nil {
		return value
	}
	if list, ok := value.([]any); ok {
		out := make([]any, len(list))
		for i, v := range list {
			out[i] = Coerce(v, declared)
		}
		return out
	}
	switch declared {
	case "string":
		return fmt.Sprint(value)
	case "int":
		if v, ok := toInt(value); ok {
			return v
		}
	case "float":
		if v, ok := toFloat(value); ok {
			return v
		}
	case "bool":
		return toBool(value)
	case "date":
		if v, ok := toDate(value); ok {
			return v
		}
	}
	return value
}

// ValidDeclaredType reports whether a declared_type value is one of the
// supported coercion targets.
func ValidDeclaredType(declared string) bool {
	switch declared {
	case "", "string", "int", "float", "bool", "date":
		return true
	}
	return false
}

func toInt(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return parsed, err == nil
	}
	return 0, false
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return parsed, err == nil
	}
	return 0, false
}

// toBool treats true/1/yes/on (case-insensitive) as true, anything else as
// false. This never fails.
func toBool(value any) bool {
	switch strings.ToLower(fmt.Sprint(value)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// toDate parses ISO-8601, normalizing a trailing Z to an explicit UTC
// offset first. Date-only values are accepted as midnight UTC.
func toDate(value any) (time.Time, bool) {
	raw := strings.Replace(fmt.Sprint(value), "Z", "+00:00", 1)
	for _, layout := range []string{
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02T15:04:05-07:00",
		"2006-01-02 15:04:05-07:00",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
