package sql

import (
	"slices"
	"strings"

	"github.com/ekaya-inc/ekaya-rest/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-rest/pkg/query"
)

// defaultConflictColumn is the ON CONFLICT target when on_conflict is absent.
const defaultConflictColumn = "id"

// Insert compiles INSERT ... RETURNING *. Columns come from the first row,
// in sorted order. A later row missing one of them gets DEFAULT; keys not in
// the first row are ignored.
func (b *Builder) Insert(table string, q *query.ParsedQuery, rows []map[string]any) (*CompiledStatement, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	a := &args{}
	insert, _, err := b.insertPrefix(table, q, rows, a)
	if err != nil {
		return nil, err
	}
	return finish(insert+" RETURNING *", a)
}

// Upsert compiles INSERT ... ON CONFLICT (cols) DO UPDATE/DO NOTHING
// RETURNING *. Conflict columns come from on_conflict (default "id").
// ignore-duplicates, or a body with nothing but conflict columns, yields
// DO NOTHING; otherwise every non-conflict column is taken from EXCLUDED.
func (b *Builder) Upsert(table string, q *query.ParsedQuery, rows []map[string]any) (*CompiledStatement, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	a := &args{}
	insert, columns, err := b.insertPrefix(table, q, rows, a)
	if err != nil {
		return nil, err
	}

	conflict := ConflictColumns(q.OnConflict)
	quotedConflict := make([]string, len(conflict))
	for i, c := range conflict {
		quotedConflict[i] = QuoteIdentifier(c)
	}

	var updates []string
	if q.PreferResolution != query.ResolutionIgnoreDuplicates {
		for _, c := range columns {
			if slices.Contains(conflict, c) {
				continue
			}
			updates = append(updates, QuoteIdentifier(c)+" = EXCLUDED."+QuoteIdentifier(c))
		}
	}

	action := "DO NOTHING"
	if len(updates) > 0 {
		action = "DO UPDATE SET " + strings.Join(updates, ", ")
	}

	return finish(insert+" ON CONFLICT ("+strings.Join(quotedConflict, ", ")+") "+action+" RETURNING *", a)
}

// UpsertUpdates reports whether Upsert compiles rows to DO UPDATE rather
// than DO NOTHING, i.e. whether existing rows can be changed.
func UpsertUpdates(q *query.ParsedQuery, rows []map[string]any) bool {
	if q.PreferResolution == query.ResolutionIgnoreDuplicates || len(rows) == 0 {
		return false
	}
	conflict := ConflictColumns(q.OnConflict)
	for c := range rows[0] {
		if !slices.Contains(conflict, c) {
			return true
		}
	}
	return false
}

// ConflictTargets compiles a SELECT of columns from the existing rows an
// upsert of rows would collide with:
//
//	SELECT "t"."user_id" FROM "t" WHERE ("t"."id") IN (($1), ($2))
//
// A row without a value (or with NULL) for some conflict column cannot
// collide and is skipped. When no row can collide it returns nil.
func (b *Builder) ConflictTargets(table string, q *query.ParsedQuery, columns []string, rows []map[string]any) (*CompiledStatement, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	conflict := ConflictColumns(q.OnConflict)
	qualify := func(cols []string) string {
		out := make([]string, len(cols))
		for i, c := range cols {
			out[i] = QuoteIdentifier(table) + "." + QuoteIdentifier(c)
		}
		return strings.Join(out, ", ")
	}

	a := &args{}
	var tuples []string
nextRow:
	for _, row := range rows {
		values := make([]string, len(conflict))
		for i, c := range conflict {
			v, ok := row[c]
			if !ok || v == nil {
				continue nextRow
			}
			values[i] = a.add(v)
		}
		tuples = append(tuples, "("+strings.Join(values, ", ")+")")
	}
	if len(tuples) == 0 {
		return nil, nil
	}

	return finish("SELECT "+qualify(columns)+" FROM "+b.tableRef(q.Schema, table)+
		" WHERE ("+qualify(conflict)+") IN ("+strings.Join(tuples, ", ")+")", a)
}

// ConflictColumns splits an on_conflict value, defaulting to "id".
func ConflictColumns(onConflict string) []string {
	var cols []string
	for _, c := range strings.Split(onConflict, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 {
		return []string{defaultConflictColumn}
	}
	return cols
}

// insertPrefix renders "INSERT INTO t (cols) VALUES (...), (...)" and
// returns the column list it used.
func (b *Builder) insertPrefix(table string, q *query.ParsedQuery, rows []map[string]any, a *args) (string, []string, error) {
	if len(rows) == 0 {
		return "", nil, apperrors.InvalidBody(apperrors.ErrMissingBody)
	}

	ref := b.tableRef(q.Schema, table)
	columns := sortedKeys(rows[0])

	if len(columns) == 0 {
		if len(rows) > 1 {
			return "", nil, apperrors.InvalidBody(apperrors.ErrInvalidBody)
		}
		return "INSERT INTO " + ref + " DEFAULT VALUES", nil, nil
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = QuoteIdentifier(c)
	}

	tuples := make([]string, len(rows))
	for i, row := range rows {
		values := make([]string, len(columns))
		for j, c := range columns {
			if v, ok := row[c]; ok {
				values[j] = a.add(v)
			} else {
				values[j] = "DEFAULT"
			}
		}
		tuples[i] = "(" + strings.Join(values, ", ") + ")"
	}

	return "INSERT INTO " + ref + " (" + strings.Join(quoted, ", ") + ") VALUES " + strings.Join(tuples, ", "), columns, nil
}

// Update compiles UPDATE ... SET ... WHERE ... RETURNING *. A request
// without filters is rejected before any SQL is assembled so a bare PATCH
// can never touch every row.
func (b *Builder) Update(table string, q *query.ParsedQuery, patch map[string]any) (*CompiledStatement, error) {
	if len(q.Filters) == 0 {
		return nil, apperrors.BadRequest(apperrors.ErrMissingFilters)
	}
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return nil, apperrors.InvalidBody(apperrors.ErrMissingBody)
	}

	a := &args{}
	ref := b.tableRef(q.Schema, table)

	keys := sortedKeys(patch)
	sets := make([]string, len(keys))
	for i, k := range keys {
		sets[i] = QuoteIdentifier(k) + " = " + a.add(patch[k])
	}

	where, err := conditions("", q.Filters, a)
	if err != nil {
		return nil, err
	}

	return finish("UPDATE "+ref+" SET "+strings.Join(sets, ", ")+whereClause(where)+" RETURNING *", a)
}

// Delete compiles DELETE FROM ... WHERE ... RETURNING *. Like Update it
// refuses to run without filters.
func (b *Builder) Delete(table string, q *query.ParsedQuery) (*CompiledStatement, error) {
	if len(q.Filters) == 0 {
		return nil, apperrors.BadRequest(apperrors.ErrMissingFilters)
	}
	if err := checkTable(table); err != nil {
		return nil, err
	}

	a := &args{}
	where, err := conditions("", q.Filters, a)
	if err != nil {
		return nil, err
	}

	return finish("DELETE FROM "+b.tableRef(q.Schema, table)+whereClause(where)+" RETURNING *", a)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
