package sql

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// args collects positional parameters while a statement is assembled.
// Placeholders are numbered in the order values are added.
type args struct {
	values []any
}

// add appends v and returns its placeholder.
func (a *args) add(v any) string {
	a.values = append(a.values, v)
	return "$" + strconv.Itoa(len(a.values))
}

// ArrayLiteral renders items as a PostgreSQL array literal: {"a","b"}.
func ArrayLiteral(items []string) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, item := range items {
		if i > 0 {
			b.WriteByte(',')
		}
		item = strings.ReplaceAll(item, `\`, `\\`)
		item = strings.ReplaceAll(item, `"`, `\"`)
		b.WriteByte('"')
		b.WriteString(item)
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

// EncodeParameter converts a compiled parameter into its text wire form.
// Parameters are always sent as text so PostgreSQL infers each type from
// the column it is compared with or assigned to. Nil stays nil (NULL).
// Objects and arrays from request bodies are sent as JSON text, which suits
// json and jsonb columns.
func EncodeParameter(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	case []string:
		return ArrayLiteral(val), nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("encode parameter of type %T: %w", v, err)
		}
		return string(b), nil
	}
}

// EncodeParameters applies EncodeParameter to every parameter.
func EncodeParameters(params []any) ([]any, error) {
	encoded := make([]any, len(params))
	for i, p := range params {
		v, err := EncodeParameter(p)
		if err != nil {
			return nil, fmt.Errorf("parameter $%d: %w", i+1, err)
		}
		encoded[i] = v
	}
	return encoded, nil
}
