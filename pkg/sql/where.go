package sql

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-rest/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-rest/pkg/query"
)

// condition renders one filter against the column qualified by ref.
func condition(ref string, f query.Filter, a *args) (string, error) {
	col := columnRef(ref, f.Column)

	var cond string
	switch f.Operator {
	case query.OpEqual, query.OpNotEqual,
		query.OpGreaterThan, query.OpGreaterOrEqual,
		query.OpLessThan, query.OpLessOrEqual,
		query.OpContains, query.OpContainedBy:
		info, _ := f.Operator.Info()
		cond = col + " " + info.SQL + " " + a.add(f.Value)

	case query.OpLike, query.OpILike:
		info, _ := f.Operator.Info()
		pattern := strings.ReplaceAll(fmt.Sprint(f.Value), "*", "%")
		cond = col + " " + info.SQL + " " + a.add(pattern)

	case query.OpIn:
		items := listValue(f.Value)
		if len(items) == 0 {
			// IN () is a syntax error; an empty list matches nothing.
			cond = "FALSE"
			break
		}
		placeholders := make([]string, len(items))
		for i, item := range items {
			placeholders[i] = a.add(item)
		}
		cond = col + " IN (" + strings.Join(placeholders, ", ") + ")"

	case query.OpIs:
		switch f.Value {
		case nil:
			cond = col + " IS NULL"
		case "true":
			cond = col + " IS TRUE"
		case "false":
			cond = col + " IS FALSE"
		case "unknown":
			cond = col + " IS UNKNOWN"
		default:
			return "", apperrors.BadRequest(fmt.Errorf("%w: is.%v", apperrors.ErrUnsupportedOperator, f.Value))
		}

	case query.OpOverlap:
		cond = col + " && " + a.add(f.Value)

	default:
		return "", apperrors.BadRequest(fmt.Errorf("%w: %q", apperrors.ErrUnsupportedOperator, string(f.Operator)))
	}

	if f.Negated {
		cond = "NOT (" + cond + ")"
	}
	return cond, nil
}

// conditions renders filters, in order, against ref.
func conditions(ref string, filters []query.Filter, a *args) ([]string, error) {
	conds := make([]string, 0, len(filters))
	for _, f := range filters {
		cond, err := condition(ref, f, a)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	return conds, nil
}

// whereClause returns " WHERE a AND b", or "" when conds is empty.
func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func listValue(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case nil:
		return nil
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	default:
		return []string{fmt.Sprint(val)}
	}
}

// partitionFilters separates main-table filters from filters addressing an
// embed by its name ("sections.title"). Embedded filters are keyed by embed
// name and carry the column without the prefix.
func partitionFilters(q *query.ParsedQuery) ([]query.Filter, map[string][]query.Filter) {
	var main []query.Filter
	embedded := make(map[string][]query.Filter)
	for _, f := range q.Filters {
		if prefix, rest, ok := strings.Cut(f.Column, "."); ok && rest != "" {
			if _, isEmbed := q.Embed(prefix); isEmbed {
				f.Column = rest
				embedded[prefix] = append(embedded[prefix], f)
				continue
			}
		}
		main = append(main, f)
	}
	return main, embedded
}
