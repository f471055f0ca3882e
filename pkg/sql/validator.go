package sql

import (
	"errors"
	"strings"
)

var (
	// ErrMultipleStatements is returned when compiled SQL would run more than one statement.
	ErrMultipleStatements = errors.New("compiled SQL must be a single statement")

	// ErrEmptyStatement indicates the SQL text is blank.
	ErrEmptyStatement = errors.New("empty SQL statement")
)

// ValidationResult is the statement ready to execute, or why it is not.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize is the last gate before a compiled statement leaves
// the builder: one trailing semicolon is dropped, and any other semicolon
// outside quotes rejects the text.
func ValidateAndNormalize(text string) ValidationResult {
	text = stripTrailingSemicolon(text)
	switch {
	case text == "":
		return ValidationResult{Error: ErrEmptyStatement}
	case hasSemicolonOutsideQuotes(text):
		return ValidationResult{Error: ErrMultipleStatements}
	}
	return ValidationResult{NormalizedSQL: text}
}

// hasSemicolonOutsideQuotes returns true if the SQL contains a semicolon
// outside single-quoted literals and double-quoted identifiers. Generated SQL
// only uses standard quoting where a quote is escaped by doubling it, which
// exits and immediately re-enters the quoted state.
func hasSemicolonOutsideQuotes(sqlQuery string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	state := stateNormal
	for _, char := range sqlQuery {
		switch state {
		case stateNormal:
			switch char {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			if char == '\'' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' {
				state = stateNormal
			}
		}
	}

	return false
}

// stripTrailingSemicolon trims surrounding whitespace and at most one
// final semicolon.
func stripTrailingSemicolon(text string) string {
	text = strings.TrimSpace(text)
	if trimmed, ok := strings.CutSuffix(text, ";"); ok {
		return strings.TrimSpace(trimmed)
	}
	return text
}
