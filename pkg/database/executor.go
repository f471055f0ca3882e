package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rest/pkg/auth"
	"github.com/ekaya-inc/ekaya-rest/pkg/logging"
	restsql "github.com/ekaya-inc/ekaya-rest/pkg/sql"
)

// PoolExecutor executes statements on the pgx pool. Each Execute runs in
// its own transaction with the session applied by sessionSettings.
type PoolExecutor struct {
	db     *DB
	roles  Roles
	logger *zap.Logger
}

var (
	_ Executor = (*PoolExecutor)(nil)
	_ TxRunner = (*PoolExecutor)(nil)
)

// NewPoolExecutor creates an executor over db.
func NewPoolExecutor(db *DB, roles Roles, logger *zap.Logger) *PoolExecutor {
	return &PoolExecutor{
		db:     db,
		roles:  roles,
		logger: logger.Named("executor"),
	}
}

// Execute runs one statement in a short transaction.
func (e *PoolExecutor) Execute(ctx context.Context, sql string, session *auth.Session, params []any) (*Result, error) {
	var result *Result
	err := pgx.BeginFunc(ctx, e.db.Pool, func(tx pgx.Tx) error {
		var err error
		result, err = e.execInTx(ctx, tx, sql, session, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RunInTx runs fn in one transaction. Every statement fn executes applies
// its own session first, so an elevated statement and a caller statement
// can share the transaction.
func (e *PoolExecutor) RunInTx(ctx context.Context, fn func(ctx context.Context, exec Executor) error) error {
	return pgx.BeginFunc(ctx, e.db.Pool, func(tx pgx.Tx) error {
		return fn(ctx, &txExecutor{tx: tx, parent: e})
	})
}

func (e *PoolExecutor) execInTx(ctx context.Context, tx pgx.Tx, sql string, session *auth.Session, params []any) (*Result, error) {
	settingsSQL, settingsParams, err := sessionSettings(session, e.roles)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, settingsSQL, settingsParams...); err != nil {
		e.logger.Error("Failed to apply session settings",
			zap.String("role", string(session.Role)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}

	encoded, err := restsql.EncodeParameters(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameters: %w", err)
	}

	if ce := e.logger.Check(zap.DebugLevel, "Executing statement"); ce != nil {
		ce.Write(
			zap.String("sql", logging.SanitizeQuery(sql)),
			zap.Strings("params", logging.SanitizeParams(encoded)),
			zap.String("role", string(session.Role)))
	}

	rows, err := tx.Query(ctx, sql, encoded...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRows(rows)
}

// collectRows reads every row into a map and normalizes driver values.
func collectRows(rows pgx.Rows) (*Result, error) {
	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}

	out := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &Result{
		Columns:      columns,
		Rows:         out,
		RowsAffected: rows.CommandTag().RowsAffected(),
	}, nil
}

// txExecutor runs statements inside a transaction opened by RunInTx.
type txExecutor struct {
	tx     pgx.Tx
	parent *PoolExecutor
}

func (t *txExecutor) Execute(ctx context.Context, sql string, session *auth.Session, params []any) (*Result, error) {
	return t.parent.execInTx(ctx, t.tx, sql, session, params)
}
