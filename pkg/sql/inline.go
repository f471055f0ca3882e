package sql

import (
	"strconv"
	"strings"
)

// Literal renders a parameter value as a SQL literal. It is used for
// display (the compile command and debug logs), never for execution.
func Literal(v any) string {
	if v == nil {
		return "NULL"
	}
	switch v.(type) {
	case int, int64, float64:
		s, _ := EncodeParameter(v)
		return s.(string)
	case bool:
		if v.(bool) {
			return "TRUE"
		}
		return "FALSE"
	}

	encoded, err := EncodeParameter(v)
	if err != nil {
		return "NULL"
	}
	s, _ := encoded.(string)
	return QuoteLiteral(s)
}

// Inline substitutes $N placeholders outside quoted literals and identifiers
// with the literal form of the matching parameter. Placeholders without a
// matching parameter are left as they are.
//
// Example:
//
//	Inline(`SELECT * FROM "t" WHERE "name" = $1`, []any{"O'Brien"})
//	// SELECT * FROM "t" WHERE "name" = 'O''Brien'
func Inline(sqlQuery string, params []any) string {
	var b strings.Builder
	b.Grow(len(sqlQuery))

	var quote byte
	i := 0
	for i < len(sqlQuery) {
		ch := sqlQuery[i]

		if quote != 0 {
			// A doubled quote exits and immediately re-enters the quoted state.
			if ch == quote {
				quote = 0
			}
			b.WriteByte(ch)
			i++
			continue
		}

		switch {
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '$':
			j := i + 1
			for j < len(sqlQuery) && sqlQuery[j] >= '0' && sqlQuery[j] <= '9' {
				j++
			}
			if j > i+1 {
				n, err := strconv.Atoi(sqlQuery[i+1 : j])
				if err == nil && n >= 1 && n <= len(params) {
					b.WriteString(Literal(params[n-1]))
					i = j
					continue
				}
			}
		}

		b.WriteByte(ch)
		i++
	}

	return b.String()
}
