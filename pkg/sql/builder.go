// Package sql compiles parsed REST queries into parameterized PostgreSQL
// statements.
//
// Every identifier is double-quoted and every client value is bound as a
// positional parameter ($1, $2, ...). Only LIMIT and OFFSET, which the parser
// has already validated as non-negative integers, are written into the SQL
// text. Each compiled statement passes ValidateAndNormalize before it is
// returned.
package sql

import (
	"errors"
	"fmt"

	"github.com/ekaya-inc/ekaya-rest/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-rest/pkg/query"
)

// DefaultSchema is the schema tables resolve to when a request names none.
const DefaultSchema = "public"

// Operation is the statement kind to compile.
type Operation string

const (
	OperationSelect Operation = "SELECT"
	OperationCount  Operation = "COUNT"
	OperationInsert Operation = "INSERT"
	OperationUpsert Operation = "UPSERT"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

// CompiledStatement is SQL text plus its positional parameters.
// Parameters[i] binds to placeholder $(i+1).
type CompiledStatement struct {
	SQL        string
	Parameters []any
}

// Inline returns the statement with parameters rendered as literals.
// For display only.
func (s *CompiledStatement) Inline() string {
	return Inline(s.SQL, s.Parameters)
}

// Builder compiles ParsedQuery values. It is stateless apart from its
// configuration and safe for concurrent use.
type Builder struct {
	defaultSchema string
}

// NewBuilder returns a Builder that leaves tables in defaultSchema
// unqualified. An empty defaultSchema means "public".
func NewBuilder(defaultSchema string) *Builder {
	if defaultSchema == "" {
		defaultSchema = DefaultSchema
	}
	return &Builder{defaultSchema: defaultSchema}
}

// DefaultSchema returns the schema unqualified table names resolve to.
func (b *Builder) DefaultSchema() string {
	return b.defaultSchema
}

// Build dispatches to the compiler for op. body is only read by the write
// operations; UPDATE uses its first element as the patch.
func (b *Builder) Build(table string, op Operation, q *query.ParsedQuery, body []map[string]any) (*CompiledStatement, error) {
	switch op {
	case OperationSelect:
		return b.Select(table, q)
	case OperationCount:
		return b.Count(table, q)
	case OperationInsert:
		return b.Insert(table, q, body)
	case OperationUpsert:
		return b.Upsert(table, q, body)
	case OperationUpdate:
		var patch map[string]any
		if len(body) > 0 {
			patch = body[0]
		}
		return b.Update(table, q, patch)
	case OperationDelete:
		return b.Delete(table, q)
	default:
		return nil, fmt.Errorf("unknown operation %q", op)
	}
}

// tableRef returns the quoted table name, schema-qualified when schema is
// set and differs from the default.
func (b *Builder) tableRef(schema, table string) string {
	if schema == "" || schema == b.defaultSchema {
		return QuoteIdentifier(table)
	}
	return QuoteIdentifier(schema) + "." + QuoteIdentifier(table)
}

var errMissingTable = errors.New("table name is required")

func checkTable(table string) error {
	if table == "" {
		return apperrors.BadRequest(errMissingTable)
	}
	return nil
}

// finish validates the assembled SQL and wraps it with its parameters.
func finish(sqlText string, a *args) (*CompiledStatement, error) {
	result := ValidateAndNormalize(sqlText)
	if result.Error != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidStatement, result.Error)
	}
	params := a.values
	if params == nil {
		params = []any{}
	}
	return &CompiledStatement{SQL: result.NormalizedSQL, Parameters: params}, nil
}
