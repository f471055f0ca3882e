// Package authz enforces row ownership on writes to protected tables before
// the mutating statement reaches the database.
package authz

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rest/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-rest/pkg/auth"
	"github.com/ekaya-inc/ekaya-rest/pkg/database"
	"github.com/ekaya-inc/ekaya-rest/pkg/query"
	restsql "github.com/ekaya-inc/ekaya-rest/pkg/sql"
)

const (
	// DefaultOwnerColumn holds the owning user's id on protected tables.
	DefaultOwnerColumn = "user_id"
	idColumn           = "id"
)

// ProtectedTable is a table whose rows may only be changed by their owner.
type ProtectedTable struct {
	Name        string
	OwnerColumn string
}

// ParseProtectedTables parses "table" or "table:owner_column" entries.
func ParseProtectedTables(specs []string) ([]ProtectedTable, error) {
	tables := make([]ProtectedTable, 0, len(specs))
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		name, owner, _ := strings.Cut(spec, ":")
		name = strings.TrimSpace(name)
		owner = strings.TrimSpace(owner)
		if name == "" {
			return nil, fmt.Errorf("invalid protected table %q", spec)
		}
		if owner == "" {
			owner = DefaultOwnerColumn
		}
		tables = append(tables, ProtectedTable{Name: name, OwnerColumn: owner})
	}
	return tables, nil
}

// Guard checks writes against the protected table list. It is safe for
// concurrent use.
type Guard struct {
	builder *restsql.Builder
	tables  map[string]ProtectedTable
	logger  *zap.Logger
}

// NewGuard creates a Guard. Ownership queries are compiled with builder so they
// select exactly the rows the mutation will touch.
func NewGuard(builder *restsql.Builder, tables []ProtectedTable, logger *zap.Logger) *Guard {
	byName := make(map[string]ProtectedTable, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}
	return &Guard{
		builder: builder,
		tables:  byName,
		logger:  logger.Named("authz"),
	}
}

// IsProtected reports whether table is on the protected list.
func (g *Guard) IsProtected(table string) bool {
	_, ok := g.tables[table]
	return ok
}

// CheckWrite rejects a write the session may not perform.
//
// service_role and unprotected tables pass. Anonymous callers are rejected
// outright. For UPDATE and DELETE the rows matched by q's filters are read
// under an elevated session; if any belongs to someone else the whole write
// is rejected. An upsert that resolves conflicts with DO UPDATE is checked
// the same way against the existing rows its body collides with. Plain
// inserts only need an identified caller.
//
// rows is the decoded request body; only upserts read it. When lock is set
// the ownership query takes row locks (FOR UPDATE), which closes the window between
// check and write if exec is transaction-bound.
func (g *Guard) CheckWrite(ctx context.Context, exec database.Executor, session *auth.Session, table string, op restsql.Operation, q *query.ParsedQuery, rows []map[string]any, lock bool) error {
	if session != nil && session.IsService() {
		return nil
	}

	protected, ok := g.tables[table]
	if !ok {
		return nil
	}

	verb := verbFor(op)
	if session == nil || session.IsAnonymous() || session.UserID == "" {
		g.logger.Info("Rejected anonymous write to protected table",
			zap.String("table", table),
			zap.String("operation", string(op)))
		return apperrors.Newf(http.StatusUnauthorized, apperrors.CodeInsufficientPriv, apperrors.ErrAnonymousWrite,
			fmt.Sprintf("authentication required to %s %s", verb, table))
	}

	stmt, err := g.ownershipQuery(table, protected.OwnerColumn, op, q, rows)
	if err != nil || stmt == nil {
		return err
	}
	checkSQL := stmt.SQL
	if lock {
		checkSQL += " FOR UPDATE"
	}

	result, err := exec.Execute(ctx, checkSQL, session.Elevated(), stmt.Parameters)
	if err != nil {
		return fmt.Errorf("ownership check on %s: %w", table, err)
	}

	for _, row := range result.Rows {
		if !ownedBy(row[protected.OwnerColumn], session.UserID) {
			g.logger.Warn("Rejected write to rows owned by another user",
				zap.String("table", table),
				zap.String("operation", string(op)),
				zap.String("user_id", session.UserID),
				zap.Int("matched_rows", len(result.Rows)))
			return apperrors.Newf(http.StatusForbidden, apperrors.CodeInsufficientPriv, apperrors.ErrOwnershipMismatch,
				fmt.Sprintf("permission denied to %s %s: rows belong to another user", verb, table))
		}
	}

	return nil
}

// ownershipQuery compiles the SELECT of existing rows op would modify, or
// returns nil when op cannot modify existing rows.
func (g *Guard) ownershipQuery(table, ownerColumn string, op restsql.Operation, q *query.ParsedQuery, rows []map[string]any) (*restsql.CompiledStatement, error) {
	switch op {
	case restsql.OperationUpdate, restsql.OperationDelete:
		return g.builder.Select(table, ownedRowsQuery(q, ownerColumn))
	case restsql.OperationUpsert:
		if !restsql.UpsertUpdates(q, rows) {
			return nil, nil
		}
		return g.builder.ConflictTargets(table, q, []string{ownerColumn}, rows)
	default:
		return nil, nil
	}
}

// ownedRowsQuery selects owner and id of the rows q's filters match.
func ownedRowsQuery(q *query.ParsedQuery, ownerColumn string) *query.ParsedQuery {
	owned := q.Clone()
	owned.Select = []string{ownerColumn, idColumn}
	owned.Embeds = nil
	owned.Order = nil
	owned.Limit = nil
	owned.Offset = nil
	owned.Count = query.CountNone
	owned.ReturnSingle = false
	return owned
}

func ownedBy(owner any, userID string) bool {
	if owner == nil {
		return false
	}
	switch v := owner.(type) {
	case string:
		return v == userID
	default:
		return fmt.Sprint(v) == userID
	}
}

func verbFor(op restsql.Operation) string {
	switch op {
	case restsql.OperationInsert:
		return "insert into"
	case restsql.OperationUpsert:
		return "upsert into"
	case restsql.OperationUpdate:
		return "update"
	case restsql.OperationDelete:
		return "delete from"
	default:
		return strings.ToLower(string(op))
	}
}
