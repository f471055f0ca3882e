package query

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// Reserved query string keys. Every other key is a filter on the
// same-named column.
const (
	ParamSelect     = "select"
	ParamLimit      = "limit"
	ParamOffset     = "offset"
	ParamOrder      = "order"
	ParamOnConflict = "on_conflict"
	ParamCount      = "count"
)

// Request headers read by the parser.
const (
	HeaderPrefer         = "Prefer"
	HeaderAccept         = "Accept"
	HeaderAcceptProfile  = "Accept-Profile"
	HeaderContentProfile = "Content-Profile"
	HeaderRange          = "Range"
)

var (
	// operatorPattern matches "<op>.<tail>". (?s) keeps newlines in the tail.
	operatorPattern = regexp.MustCompile(`(?s)^([a-z]+)\.(.*)$`)

	// numericPattern accepts plain integers and decimals without leading
	// zeros, so values like "02134" stay strings.
	numericPattern = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?$`)

	rangeHeaderPattern = regexp.MustCompile(`^\s*(\d+)\s*-\s*(\d*)\s*$`)
)

// Parse builds a ParsedQuery from query string pairs and request headers.
// It never fails: bad tokens are dropped and recorded in Warnings.
func Parse(pairs Pairs, headers http.Header) *ParsedQuery {
	q := &ParsedQuery{PreferReturn: ReturnRepresentation}

	for _, pair := range pairs {
		switch pair.Key {
		case ParamSelect:
			cols, embeds, warnings := parseSelect(pair.Value)
			q.Select = cols
			q.Embeds = embeds
			q.Warnings = append(q.Warnings, warnings...)
		case ParamLimit:
			q.Limit = q.parseNonNegative(pair)
		case ParamOffset:
			q.Offset = q.parseNonNegative(pair)
		case ParamOrder:
			q.Order = append(q.Order, q.parseOrder(pair.Value)...)
		case ParamOnConflict:
			q.OnConflict = strings.TrimSpace(pair.Value)
		case ParamCount:
			if mode, ok := parseCountMode(pair.Value); ok {
				q.Count = mode
			} else {
				q.warn(pair.Key+"="+pair.Value, "unknown count mode")
			}
		default:
			if f, ok := q.parseFilter(pair.Key, pair.Value); ok {
				q.Filters = append(q.Filters, f)
			}
		}
	}

	q.applyHeaders(headers)

	return q
}

// ParseRequest is a convenience wrapper over ParseQueryString and Parse.
func ParseRequest(rawQuery string, headers http.Header) *ParsedQuery {
	return Parse(ParseQueryString(rawQuery), headers)
}

func (q *ParsedQuery) warn(token, reason string) {
	q.Warnings = append(q.Warnings, Warning{Token: token, Reason: reason})
}

// parseNonNegative parses limit/offset. Unparsable or negative values are
// clamped to 0.
func (q *ParsedQuery) parseNonNegative(pair Pair) *int {
	n, err := strconv.Atoi(strings.TrimSpace(pair.Value))
	if err != nil || n < 0 {
		q.warn(pair.Key+"="+pair.Value, "not a non-negative integer, using 0")
		n = 0
	}
	return &n
}

// parseFilter turns key=value into a Filter. The value is "<op>.<tail>" or
// "not.<op>.<tail>"; any value whose head is not a known operator, including
// "not." followed by no operator, is an equality match on the whole value.
func (q *ParsedQuery) parseFilter(key, value string) (Filter, bool) {
	token := key + "=" + value
	column := strings.TrimSpace(key)
	if column == "" {
		q.warn(token, "filter has no column")
		return Filter{}, false
	}

	f := Filter{Column: column, Operator: OpEqual}
	tail := value
	if rest, ok := strings.CutPrefix(value, "not."); ok {
		if op, opTail, ok := splitOperator(rest); ok {
			f.Negated, f.Operator, tail = true, op, opTail
		}
	}
	if !f.Negated {
		if op, opTail, ok := splitOperator(value); ok {
			f.Operator, tail = op, opTail
		}
	}

	v, ok := coerce(f.Operator, tail)
	if !ok {
		q.warn(token, "invalid value for operator "+string(f.Operator))
		return Filter{}, false
	}
	f.Value = v

	return f, true
}

// splitOperator splits "<op>.<tail>" when op is a known operator.
func splitOperator(value string) (Operator, string, bool) {
	m := operatorPattern.FindStringSubmatch(value)
	if m == nil {
		return "", "", false
	}
	op, ok := LookupOperator(m[1])
	if !ok {
		return "", "", false
	}
	return op, m[2], true
}

// coerce converts the raw filter tail according to the operator's rule.
func coerce(op Operator, raw string) (any, bool) {
	info, ok := op.Info()
	if !ok {
		return nil, false
	}

	switch info.Coercion {
	case CoerceNumeric:
		return parseNumber(raw), true
	case CoerceList:
		return parseList(raw), true
	case CoerceIs:
		switch strings.ToLower(raw) {
		case "null":
			return nil, true
		case "true", "false", "unknown":
			return strings.ToLower(raw), true
		}
		return nil, false
	case CoerceRangeOrArray:
		return parseRangeOrArray(raw), true
	default:
		return raw, true
	}
}

// parseNumber returns int64 or float64 for numeric text, else the text.
func parseNumber(raw string) any {
	if !numericPattern.MatchString(raw) {
		return raw
	}
	if !strings.Contains(raw, ".") {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
		return raw
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// parseList splits "a,b,c" or "(a,b,c)"; double-quoted items keep commas.
func parseList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")") {
		raw = raw[1 : len(raw)-1]
	}
	items := make([]string, 0)
	for _, item := range splitTopLevel(raw) {
		if len(item) >= 2 && strings.HasPrefix(item, `"`) && strings.HasSuffix(item, `"`) {
			item = item[1 : len(item)-1]
		}
		items = append(items, item)
	}
	return items
}

// parseRangeOrArray handles ov values: {a,b} is an array, [x,y) / (x,y] /
// [x,y] are range literals kept verbatim, anything else is comma split.
func parseRangeOrArray(raw string) any {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}") {
		return parseList(raw[1 : len(raw)-1])
	}
	if len(raw) >= 2 && strings.ContainsAny(raw[:1], "[(") && strings.ContainsAny(raw[len(raw)-1:], ")]") {
		return raw
	}
	return parseList(raw)
}

// parseOrder parses "col.desc.nullslast,other". Direction and nulls
// modifiers are read from the end; the rest is the column.
func (q *ParsedQuery) parseOrder(value string) []OrderSpec {
	var specs []OrderSpec
	for _, item := range splitTopLevel(value) {
		spec := OrderSpec{Ascending: true}
		parts := strings.Split(item, ".")
	modifiers:
		for len(parts) > 1 {
			switch strings.ToLower(parts[len(parts)-1]) {
			case "asc":
				spec.Ascending = true
			case "desc":
				spec.Ascending = false
			case "nullsfirst":
				spec.NullsFirst = true
			case "nullslast":
				spec.NullsLast = true
			default:
				break modifiers
			}
			parts = parts[:len(parts)-1]
		}
		spec.Column = strings.TrimSpace(strings.Join(parts, "."))
		if spec.Column == "" || strings.ContainsAny(spec.Column, "()") {
			q.warn("order="+item, "unparsable order term")
			continue
		}
		if spec.NullsFirst && spec.NullsLast {
			q.warn("order="+item, "conflicting nulls modifiers, using nullsfirst")
			spec.NullsLast = false
		}
		specs = append(specs, spec)
	}
	return specs
}

func parseCountMode(value string) (CountMode, bool) {
	switch CountMode(strings.ToLower(strings.TrimSpace(value))) {
	case CountExact:
		return CountExact, true
	case CountPlanned:
		return CountPlanned, true
	case CountEstimated:
		return CountEstimated, true
	}
	return CountNone, false
}

func (q *ParsedQuery) applyHeaders(headers http.Header) {
	if headers == nil {
		return
	}

	for _, token := range strings.Split(strings.Join(headers.Values(HeaderPrefer), ","), ",") {
		token = strings.ToLower(strings.TrimSpace(token))
		key, value, ok := strings.Cut(token, "=")
		if !ok {
			continue
		}
		switch key {
		case "return":
			switch ReturnPreference(value) {
			case ReturnMinimal, ReturnRepresentation:
				q.PreferReturn = ReturnPreference(value)
			}
		case "resolution":
			switch Resolution(value) {
			case ResolutionMergeDuplicates, ResolutionIgnoreDuplicates:
				q.PreferResolution = Resolution(value)
			}
		case "count":
			// The count query parameter wins over the header.
			if mode, ok := parseCountMode(value); ok && q.Count == CountNone {
				q.Count = mode
			}
		}
	}

	for _, accept := range headers.Values(HeaderAccept) {
		if strings.Contains(strings.ToLower(accept), "application/vnd.pgrst.object") {
			q.ReturnSingle = true
		}
	}

	if schema := strings.TrimSpace(headers.Get(HeaderContentProfile)); schema != "" {
		q.Schema = schema
	} else if schema := strings.TrimSpace(headers.Get(HeaderAcceptProfile)); schema != "" {
		q.Schema = schema
	}

	if q.Limit == nil && q.Offset == nil {
		if m := rangeHeaderPattern.FindStringSubmatch(headers.Get(HeaderRange)); m != nil {
			from, _ := strconv.Atoi(m[1])
			q.Offset = &from
			if m[2] != "" {
				if to, err := strconv.Atoi(m[2]); err == nil && to >= from {
					limit := to - from + 1
					q.Limit = &limit
				}
			}
		}
	}
}
