package database

import (
	"context"

	"github.com/ekaya-inc/ekaya-rest/pkg/auth"
)

// Result is the outcome of one statement. Rows are keyed by column name.
type Result struct {
	Columns      []string
	Rows         []map[string]any
	RowsAffected int64
}

// Executor runs a single compiled statement on behalf of a session.
// Errors from the database are returned unwrapped so callers can inspect
// *pgconn.PgError codes.
type Executor interface {
	Execute(ctx context.Context, sql string, session *auth.Session, params []any) (*Result, error)
}

// TxRunner is implemented by executors that can run several statements in
// one transaction. The Executor passed to fn is bound to that transaction;
// returning an error from fn rolls it back.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, exec Executor) error) error
}
