package sql

import (
	"strconv"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/ekaya-rest/pkg/query"
)

// relationship is the join condition between the main table and an embed.
type relationship struct {
	// embedColumn = mainColumn
	embedColumn string
	mainColumn  string
	// single marks many-to-one: at most one embedded row per main row.
	single bool
}

// inferRelationship resolves how an embed joins its main table.
//
// Without a hint the embed carries a foreign key named after the singular of
// the main table's last "_" segment (orchestral_sections -> section_id). A
// hint containing "_id" names that column on the embed. Any other hint is a
// column on the main table referencing the embed's id.
func inferRelationship(mainTable string, e query.EmbedSpec) relationship {
	switch {
	case e.FKHint == "":
		return relationship{embedColumn: ForeignKeyName(mainTable), mainColumn: "id"}
	case strings.Contains(e.FKHint, "_id"):
		return relationship{embedColumn: e.FKHint, mainColumn: "id"}
	default:
		return relationship{embedColumn: "id", mainColumn: e.FKHint, single: true}
	}
}

// ForeignKeyName returns the conventional foreign key column referencing
// table: the singular of its last "_"-separated segment plus "_id".
func ForeignKeyName(table string) string {
	segment := table
	if i := strings.LastIndex(table, "_"); i >= 0 && i < len(table)-1 {
		segment = table[i+1:]
	}
	return inflection.Singular(segment) + "_id"
}

func (r relationship) condition(mainRef, embedRef string) string {
	return embedRef + "." + QuoteIdentifier(r.embedColumn) + " = " + mainRef + "." + QuoteIdentifier(r.mainColumn)
}

// embedSource returns the FROM item for an embed and the reference its
// columns are qualified with.
func (b *Builder) embedSource(schema string, e query.EmbedSpec) (from, ref string) {
	ref = QuoteIdentifier(e.Table)
	from = b.tableRef(schema, e.Table)
	if from != ref {
		from += " AS " + ref
	}
	return from, ref
}

// Select compiles a read. Embeds marked inner are INNER JOINed and their
// filters join the outer WHERE; every other embed becomes a correlated
// subquery in the select list (a JSON array, or a single object for
// main-table hints).
func (b *Builder) Select(table string, q *query.ParsedQuery) (*CompiledStatement, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	a := &args{}
	mainRef := b.tableRef(q.Schema, table)
	mainFilters, embedded := partitionFilters(q)

	selectList := make([]string, 0, len(q.Select)+len(q.Embeds))
	if len(q.Select) == 0 {
		selectList = append(selectList, mainRef+".*")
	}
	for _, token := range q.Select {
		selectList = append(selectList, selectItem(mainRef, token))
	}

	var joins []string
	type innerFilters struct {
		ref     string
		filters []query.Filter
	}
	var inner []innerFilters

	for _, e := range q.Embeds {
		rel := inferRelationship(table, e)
		from, ref := b.embedSource(q.Schema, e)
		name := QuoteIdentifier(e.Name())

		if e.Inner {
			selectList = append(selectList, objectExpr(ref, e.Columns)+" AS "+name)
			joins = append(joins, " INNER JOIN "+from+" ON "+rel.condition(mainRef, ref))
			inner = append(inner, innerFilters{ref: ref, filters: embedded[e.Name()]})
			continue
		}

		conds := []string{rel.condition(mainRef, ref)}
		extra, err := conditions(ref, embedded[e.Name()], a)
		if err != nil {
			return nil, err
		}
		conds = append(conds, extra...)

		var sub string
		if rel.single {
			sub = "(SELECT " + objectExpr(ref, e.Columns) + " FROM " + from +
				whereClause(conds) + " LIMIT 1) AS " + name
		} else {
			sub = "(SELECT COALESCE(json_agg(" + objectExpr(ref, e.Columns) + "), '[]'::json) FROM " + from +
				whereClause(conds) + ") AS " + name
		}
		selectList = append(selectList, sub)
	}

	where, err := conditions(mainRef, mainFilters, a)
	if err != nil {
		return nil, err
	}
	for _, f := range inner {
		conds, err := conditions(f.ref, f.filters, a)
		if err != nil {
			return nil, err
		}
		where = append(where, conds...)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selectList, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(mainRef)
	for _, j := range joins {
		sb.WriteString(j)
	}
	sb.WriteString(whereClause(where))
	sb.WriteString(orderClause(mainRef, q))
	sb.WriteString(paginationClause(q))

	return finish(sb.String(), a)
}

// orderClause renders ORDER BY. A term may address an inner embed's column
// as "embed.column"; terms addressing other embeds are skipped since their
// rows are aggregated.
func orderClause(mainRef string, q *query.ParsedQuery) string {
	terms := make([]string, 0, len(q.Order))
	for _, o := range q.Order {
		ref, col := mainRef, o.Column
		if prefix, rest, ok := strings.Cut(o.Column, "."); ok && rest != "" {
			if e, isEmbed := q.Embed(prefix); isEmbed {
				if !e.Inner {
					continue
				}
				ref, col = QuoteIdentifier(e.Table), rest
			}
		}

		term := columnRef(ref, col)
		if o.Ascending {
			term += " ASC"
		} else {
			term += " DESC"
		}
		switch {
		case o.NullsFirst:
			term += " NULLS FIRST"
		case o.NullsLast:
			term += " NULLS LAST"
		}
		terms = append(terms, term)
	}

	if len(terms) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(terms, ", ")
}

// paginationClause renders LIMIT/OFFSET. Both are validated integers.
func paginationClause(q *query.ParsedQuery) string {
	var s string
	if q.Limit != nil {
		s += " LIMIT " + strconv.Itoa(*q.Limit)
	}
	if q.Offset != nil {
		s += " OFFSET " + strconv.Itoa(*q.Offset)
	}
	return s
}

// Count compiles the total-count companion of Select: same table, main
// filters and inner embed joins, no other embeds, ordering or pagination.
// Inner embeds drop parent rows in Select, so Count joins them too and the
// total matches the rows a full page would return.
//
// Planned and estimated counts without filters or inner embeds read the
// planner's row estimate from pg_class instead of scanning; otherwise they
// fall back to an exact count.
func (b *Builder) Count(table string, q *query.ParsedQuery) (*CompiledStatement, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	a := &args{}
	mainRef := b.tableRef(q.Schema, table)
	mainFilters, embedded := partitionFilters(q)

	estimate := q.Count == query.CountEstimated || q.Count == query.CountPlanned
	if estimate && len(mainFilters) == 0 && !q.HasInnerEmbed() {
		return finish("SELECT GREATEST(reltuples, 0)::bigint AS count FROM pg_class WHERE oid = "+a.add(mainRef)+"::regclass", a)
	}

	where, err := conditions(mainRef, mainFilters, a)
	if err != nil {
		return nil, err
	}

	var joins strings.Builder
	if q.HasInnerEmbed() {
		for _, e := range q.Embeds {
			if !e.Inner {
				continue
			}
			from, ref := b.embedSource(q.Schema, e)
			joins.WriteString(" INNER JOIN " + from + " ON " + inferRelationship(table, e).condition(mainRef, ref))
			conds, err := conditions(ref, embedded[e.Name()], a)
			if err != nil {
				return nil, err
			}
			where = append(where, conds...)
		}
	}

	return finish("SELECT COUNT(*) AS count FROM "+mainRef+joins.String()+whereClause(where), a)
}
