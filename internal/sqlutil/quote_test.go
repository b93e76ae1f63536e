package sqlutil

import "testing"

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"users", "`users`"},
		{"user_data", "`user_data`"},
		{"select", "`select`"},        // reserved word
		{"user`data", "`user``data`"}, // backtick in name
		{"", "``"},                    // empty string
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := QuoteIdentifier(tt.input)
			if result != tt.expected {
				t.Errorf("QuoteIdentifier(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestValidIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"name", true},
		{"created_at", true},
		{"order-by", true},
		{"Field9", true},
		{"", false},
		{"name;drop table", false},
		{"a.b", false},
		{"spaced name", false},
		{"`quoted`", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ValidIdentifier(tt.input); got != tt.want {
				t.Errorf("ValidIdentifier(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
