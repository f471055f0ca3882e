package sql

import (
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// QuoteIdentifier safely quotes a SQL identifier using PostgreSQL's
// double-quote quoting. Every table, schema and column name that reaches SQL
// text passes through here.
func QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// QuoteLiteral renders s as a single-quoted literal with quotes doubled.
func QuoteLiteral(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// pathSegment is one "->key" or "->>key" step of a JSON path.
type pathSegment struct {
	arrow string
	key   string
}

// splitJSONPath splits "data->a->>b" into "data" and its path segments.
func splitJSONPath(col string) (string, []pathSegment) {
	idx := strings.Index(col, "->")
	if idx == -1 {
		return col, nil
	}

	base := col[:idx]
	rest := col[idx:]
	var segments []pathSegment
	for rest != "" {
		arrow := "->"
		if strings.HasPrefix(rest, "->>") {
			arrow = "->>"
		}
		rest = rest[len(arrow):]

		key := rest
		if next := strings.Index(rest, "->"); next != -1 {
			key = rest[:next]
			rest = rest[next:]
		} else {
			rest = ""
		}
		segments = append(segments, pathSegment{arrow: arrow, key: key})
	}

	return base, segments
}

// jsonKey renders a JSON path key: array indexes stay numeric, object keys
// become quoted literals.
func jsonKey(key string) string {
	if _, err := strconv.Atoi(key); err == nil {
		return key
	}
	return QuoteLiteral(key)
}

// columnRef renders a (possibly JSON-path) column, qualified by ref when
// ref is non-empty.
func columnRef(ref, col string) string {
	base, segments := splitJSONPath(col)

	expr := QuoteIdentifier(base)
	if ref != "" {
		expr = ref + "." + expr
	}
	for _, seg := range segments {
		expr += seg.arrow + jsonKey(seg.key)
	}
	return expr
}

// selectToken is a parsed select list entry.
type selectToken struct {
	expr string
	// key is the name the value appears under in the result row.
	key string
	// renamed is set when key differs from the plain column name.
	renamed bool
}

// parseSelectToken handles "col", "alias:col" and "col->a->>b".
func parseSelectToken(ref, token string) selectToken {
	alias := ""
	col := token
	if i := strings.Index(token, ":"); i > 0 && !strings.Contains(token, "::") {
		alias = strings.TrimSpace(token[:i])
		col = strings.TrimSpace(token[i+1:])
	}

	base, segments := splitJSONPath(col)
	t := selectToken{expr: columnRef(ref, col), key: base}
	if len(segments) > 0 {
		t.key = segments[len(segments)-1].key
		t.renamed = true
	}
	if alias != "" {
		t.key = alias
		t.renamed = true
	}
	return t
}

// selectItem renders a main-table select list entry.
func selectItem(ref, token string) string {
	if token == "*" {
		return ref + ".*"
	}
	t := parseSelectToken(ref, token)
	if t.renamed {
		return t.expr + " AS " + QuoteIdentifier(t.key)
	}
	return t.expr
}

// objectExpr renders the JSON object for one embedded row.
func objectExpr(ref string, columns []string) string {
	for _, col := range columns {
		if col == "*" {
			return "to_json(" + ref + ".*)"
		}
	}

	parts := make([]string, 0, len(columns)*2)
	for _, col := range columns {
		t := parseSelectToken(ref, col)
		parts = append(parts, QuoteLiteral(t.key), t.expr)
	}
	return "json_build_object(" + strings.Join(parts, ", ") + ")"
}
