package database

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rest/pkg/auth"
	"github.com/ekaya-inc/ekaya-rest/pkg/logging"
	restsql "github.com/ekaya-inc/ekaya-rest/pkg/sql"
)

// SQLExecutor executes statements through database/sql. It is used where a
// *sql.DB is already available (for example pgx's stdlib driver) and behaves
// like PoolExecutor.
type SQLExecutor struct {
	db     *sql.DB
	roles  Roles
	logger *zap.Logger
}

var (
	_ Executor = (*SQLExecutor)(nil)
	_ TxRunner = (*SQLExecutor)(nil)
)

// NewSQLExecutor creates an executor over db.
func NewSQLExecutor(db *sql.DB, roles Roles, logger *zap.Logger) *SQLExecutor {
	return &SQLExecutor{
		db:     db,
		roles:  roles,
		logger: logger.Named("sql-executor"),
	}
}

// Execute runs one statement in a short transaction.
func (e *SQLExecutor) Execute(ctx context.Context, query string, session *auth.Session, params []any) (*Result, error) {
	var result *Result
	err := e.RunInTx(ctx, func(ctx context.Context, exec Executor) error {
		var err error
		result, err = exec.Execute(ctx, query, session, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RunInTx runs fn in one transaction, committing when fn returns nil.
func (e *SQLExecutor) RunInTx(ctx context.Context, fn func(ctx context.Context, exec Executor) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(ctx, &sqlTxExecutor{tx: tx, parent: e}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			e.logger.Warn("Failed to roll back transaction", zap.String("error", logging.SanitizeError(rbErr)))
		}
		return err
	}

	return tx.Commit()
}

type sqlTxExecutor struct {
	tx     *sql.Tx
	parent *SQLExecutor
}

func (t *sqlTxExecutor) Execute(ctx context.Context, query string, session *auth.Session, params []any) (*Result, error) {
	settingsSQL, settingsParams, err := sessionSettings(session, t.parent.roles)
	if err != nil {
		return nil, err
	}
	if _, err := t.tx.ExecContext(ctx, settingsSQL, settingsParams...); err != nil {
		return nil, err
	}

	encoded, err := restsql.EncodeParameters(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameters: %w", err)
	}

	t.parent.logger.Debug("Executing statement",
		zap.String("sql", logging.SanitizeQuery(query)),
		zap.Int("params", len(encoded)))

	rows, err := t.tx.QueryContext(ctx, query, encoded...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRows(rows)
}

// scanRows reads database/sql rows into maps keyed by column name.
func scanRows(rows *sql.Rows) (*Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
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
		RowsAffected: int64(len(out)),
	}, nil
}
