package query

import (
	"strings"
)

// splitTopLevel splits s on commas that are outside parentheses and outside
// double-quoted strings. Empty items are dropped.
func splitTopLevel(s string) []string {
	var items []string
	var current strings.Builder
	parenDepth := 0
	inQuotes := false

	for _, ch := range s {
		switch {
		case ch == '"':
			inQuotes = !inQuotes
			current.WriteRune(ch)
		case inQuotes:
			current.WriteRune(ch)
		case ch == '(':
			parenDepth++
			current.WriteRune(ch)
		case ch == ')':
			if parenDepth > 0 {
				parenDepth--
			}
			current.WriteRune(ch)
		case ch == ',' && parenDepth == 0:
			items = appendNonEmpty(items, current.String())
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	items = appendNonEmpty(items, current.String())

	return items
}

func appendNonEmpty(items []string, item string) []string {
	item = strings.TrimSpace(item)
	if item == "" {
		return items
	}
	return append(items, item)
}

// parseSelect splits the select parameter into plain column tokens and
// embed specs. A nil column slice means "all columns".
func parseSelect(value string) ([]string, []EmbedSpec, []Warning) {
	var columns []string
	var embeds []EmbedSpec
	var warnings []Warning
	star := false

	for _, token := range splitTopLevel(value) {
		open := strings.Index(token, "(")
		if open == -1 {
			if token == "*" {
				star = true
				continue
			}
			if strings.ContainsAny(token, ")") {
				warnings = append(warnings, Warning{Token: token, Reason: "unbalanced parenthesis in select"})
				continue
			}
			columns = append(columns, token)
			continue
		}

		if !strings.HasSuffix(token, ")") {
			warnings = append(warnings, Warning{Token: token, Reason: "unterminated embed in select"})
			continue
		}

		embed, w, ok := parseEmbed(token[:open], token[open+1:len(token)-1])
		warnings = append(warnings, w...)
		if !ok {
			continue
		}
		embeds = append(embeds, embed)
	}

	// A bare "*" next to explicit columns still means every column.
	if star || len(columns) == 0 {
		columns = nil
	}

	return columns, embeds, warnings
}

// parseEmbed parses "alias:table!hint!inner" and the inner column list.
func parseEmbed(head, inner string) (EmbedSpec, []Warning, bool) {
	var warnings []Warning
	spec := EmbedSpec{}

	if alias, rest, ok := strings.Cut(head, ":"); ok {
		spec.Alias = strings.TrimSpace(alias)
		head = rest
	}

	parts := strings.Split(head, "!")
	spec.Table = strings.TrimSpace(parts[0])
	if spec.Table == "" {
		return spec, []Warning{{Token: head, Reason: "embed is missing a table name"}}, false
	}
	for _, hint := range parts[1:] {
		hint = strings.TrimSpace(hint)
		switch hint {
		case "":
		case "inner":
			spec.Inner = true
		case "left":
			// LEFT semantics are what the subquery strategy already gives.
		default:
			spec.FKHint = hint
		}
	}

	for _, col := range splitTopLevel(inner) {
		if strings.ContainsAny(col, "()") {
			warnings = append(warnings, Warning{Token: col, Reason: "nested embedding is not supported"})
			continue
		}
		spec.Columns = append(spec.Columns, col)
	}
	if len(spec.Columns) == 0 {
		spec.Columns = []string{"*"}
	}

	return spec, warnings, true
}
