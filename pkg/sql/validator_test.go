package sql

import (
	"errors"
	"testing"
)

func TestValidateAndNormalize_ValidStatements(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "select without semicolon",
			input:    `SELECT "orchestral_sections".* FROM "orchestral_sections"`,
			expected: `SELECT "orchestral_sections".* FROM "orchestral_sections"`,
		},
		{
			name:     "trailing semicolon and whitespace",
			input:    `SELECT 1;  `,
			expected: `SELECT 1`,
		},
		{
			name:     "leading and trailing whitespace",
			input:    "  SELECT 1  ",
			expected: "SELECT 1",
		},
		{
			name:     "semicolon inside literal",
			input:    `SELECT "t"."data"->'a;b' FROM "t"`,
			expected: `SELECT "t"."data"->'a;b' FROM "t"`,
		},
		{
			name:     "semicolon inside quoted identifier",
			input:    `SELECT * FROM "table;name"`,
			expected: `SELECT * FROM "table;name"`,
		},
		{
			name:     "doubled quotes inside identifier",
			input:    `SELECT "a"";b" FROM "t"`,
			expected: `SELECT "a"";b" FROM "t"`,
		},
		{
			name:     "doubled quotes inside literal",
			input:    `SELECT json_build_object('O''Brien;', "t"."x") FROM "t"`,
			expected: `SELECT json_build_object('O''Brien;', "t"."x") FROM "t"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateAndNormalize(tt.input)
			if result.Error != nil {
				t.Fatalf("unexpected error: %v", result.Error)
			}
			if result.NormalizedSQL != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result.NormalizedSQL)
			}
		})
	}
}

func TestValidateAndNormalize_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected error
	}{
		{
			name:     "two statements",
			input:    "SELECT 1; SELECT 2",
			expected: ErrMultipleStatements,
		},
		{
			name:     "stacked delete",
			input:    `SELECT * FROM "t"; DELETE FROM "t"`,
			expected: ErrMultipleStatements,
		},
		{
			name:     "backslash does not escape a quote",
			input:    `SELECT 'a\'; DROP TABLE t`,
			expected: ErrMultipleStatements,
		},
		{
			name:     "empty",
			input:    "   ",
			expected: ErrEmptyStatement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateAndNormalize(tt.input)
			if !errors.Is(result.Error, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, result.Error)
			}
		})
	}
}

func TestStripTrailingSemicolon(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT 1", "SELECT 1"},
		{"SELECT 1;", "SELECT 1"},
		{"SELECT 1 ; \n", "SELECT 1"},
		{"SELECT ';'", "SELECT ';'"},
	}

	for _, tt := range tests {
		if got := stripTrailingSemicolon(tt.input); got != tt.expected {
			t.Errorf("stripTrailingSemicolon(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
