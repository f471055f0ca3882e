// Package engine runs one REST request end to end: parse, authorize,
// compile, execute and format.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-rest/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-rest/pkg/audit"
	"github.com/ekaya-inc/ekaya-rest/pkg/auth"
	"github.com/ekaya-inc/ekaya-rest/pkg/authz"
	"github.com/ekaya-inc/ekaya-rest/pkg/database"
	"github.com/ekaya-inc/ekaya-rest/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-rest/pkg/logging"
	"github.com/ekaya-inc/ekaya-rest/pkg/query"
	"github.com/ekaya-inc/ekaya-rest/pkg/response"
	restsql "github.com/ekaya-inc/ekaya-rest/pkg/sql"
)

// Config holds request processing options.
type Config struct {
	// DefaultSchema is used when a request names no profile.
	DefaultSchema string
	// ExposedSchemas lists the schemas a profile header may select. Empty
	// means only DefaultSchema.
	ExposedSchemas []string
	// TransactionalWrites runs the ownership check and the write in one
	// transaction when the executor supports it.
	TransactionalWrites bool
	// MaxRows caps the rows a read returns. Zero means no cap.
	MaxRows int
	// RejectSuspiciousValues turns injection-looking filter values into 400s
	// instead of log warnings.
	RejectSuspiciousValues bool
	// AuditWrites emits a security audit event for every completed write.
	AuditWrites bool
}

// Engine processes REST requests. Construct one per process and share it;
// it holds no per-request state.
type Engine struct {
	builder *restsql.Builder
	exec    database.Executor
	guard   *authz.Guard
	cfg     Config
	exposed map[string]bool
	auditor *audit.SecurityAuditor
	logger  *zap.Logger
}

// New creates an Engine. guard may be nil when no table is protected.
func New(exec database.Executor, guard *authz.Guard, cfg Config, logger *zap.Logger) *Engine {
	builder := restsql.NewBuilder(cfg.DefaultSchema)

	exposed := map[string]bool{builder.DefaultSchema(): true}
	for _, s := range cfg.ExposedSchemas {
		if s = strings.TrimSpace(s); s != "" {
			exposed[s] = true
		}
	}

	if guard == nil {
		guard = authz.NewGuard(builder, nil, logger)
	}

	return &Engine{
		builder: builder,
		exec:    exec,
		guard:   guard,
		cfg:     cfg,
		exposed: exposed,
		auditor: audit.NewSecurityAuditor(logger),
		logger:  logger.Named("engine"),
	}
}

// Plan is a compiled request: the statement the engine runs, plus the
// COUNT statement for reads that request one.
type Plan struct {
	Operation restsql.Operation
	Query     *query.ParsedQuery
	Statement *restsql.CompiledStatement
	Count     *restsql.CompiledStatement
	// Rows is the decoded body of a write.
	Rows []map[string]any
	// Status is the success status before formatter overrides.
	Status int
}

// Process handles one request against table.
//
// Rejections (bad tokens that cannot be skipped, authorization failures,
// singleton mismatches) come back as a FormattedResponse with the error
// envelope. Executor errors are returned unmodified so the caller can map
// native database error codes.
func (e *Engine) Process(ctx context.Context, method, table, rawQuery string, headers http.Header, body []byte, session *auth.Session) (*response.FormattedResponse, error) {
	resp, err := e.process(ctx, method, table, rawQuery, headers, body, session)
	if err != nil {
		if _, ok := apperrors.AsAPIError(err); ok {
			return response.FromError(err), nil
		}
		return nil, err
	}
	return resp, nil
}

func (e *Engine) process(ctx context.Context, method, table, rawQuery string, headers http.Header, body []byte, session *auth.Session) (*response.FormattedResponse, error) {
	p, err := e.compile(ctx, method, table, rawQuery, headers, body, session)
	if err != nil {
		return nil, err
	}
	if p.Operation == restsql.OperationSelect {
		return e.read(ctx, table, p, session)
	}
	return e.write(ctx, table, p, session)
}

// Compile parses a request and compiles it without executing anything.
// Errors are the same APIErrors Process renders as envelopes.
func (e *Engine) Compile(method, table, rawQuery string, headers http.Header, body []byte) (*Plan, error) {
	return e.compile(context.Background(), method, table, rawQuery, headers, body, nil)
}

func (e *Engine) compile(ctx context.Context, method, table, rawQuery string, headers http.Header, body []byte, session *auth.Session) (*Plan, error) {
	q := query.ParseRequest(rawQuery, headers)
	if len(q.Warnings) > 0 {
		e.logger.Debug("Dropped query tokens",
			zap.String("table", table),
			zap.Any("warnings", q.Warnings))
	}

	if err := e.checkSchema(q); err != nil {
		return nil, err
	}
	if err := e.checkFilterValues(ctx, session, table, q); err != nil {
		return nil, err
	}

	op, err := OperationFor(method, q)
	if err != nil {
		return nil, err
	}
	p := &Plan{Operation: op, Query: q, Status: http.StatusOK}

	switch op {
	case restsql.OperationSelect:
		if e.cfg.MaxRows > 0 && (q.Limit == nil || *q.Limit > e.cfg.MaxRows) {
			limit := e.cfg.MaxRows
			q.Limit = &limit
		}
		if p.Statement, err = e.builder.Select(table, q); err != nil {
			return nil, err
		}
		if q.Count != query.CountNone {
			if p.Count, err = e.builder.Count(table, q); err != nil {
				return nil, err
			}
		}
		return p, nil
	case restsql.OperationDelete:
		if p.Statement, err = e.builder.Build(table, op, q, nil); err != nil {
			return nil, err
		}
		return p, nil
	}

	rows, err := jsonutil.DecodeRows(body)
	if err != nil {
		// UPDATE reports missing filters before a missing body.
		if !(op == restsql.OperationUpdate && errors.Is(err, apperrors.ErrMissingBody)) {
			return nil, err
		}
	}

	if op == restsql.OperationUpdate {
		if len(rows) > 1 {
			return nil, apperrors.Newf(http.StatusBadRequest, apperrors.CodeInvalidBody, apperrors.ErrInvalidBody,
				"PATCH body must be a single object")
		}
	} else {
		p.Status = http.StatusCreated
	}

	if p.Statement, err = e.builder.Build(table, op, q, rows); err != nil {
		return nil, err
	}
	p.Rows = rows
	return p, nil
}

// OperationFor selects the statement kind for an HTTP method. HEAD reads
// like GET; POST becomes an upsert when a resolution or conflict target is
// given.
func OperationFor(method string, q *query.ParsedQuery) (restsql.Operation, error) {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead:
		return restsql.OperationSelect, nil
	case http.MethodPost:
		if q.PreferResolution != query.ResolutionNone || q.OnConflict != "" {
			return restsql.OperationUpsert, nil
		}
		return restsql.OperationInsert, nil
	case http.MethodPatch:
		return restsql.OperationUpdate, nil
	case http.MethodDelete:
		return restsql.OperationDelete, nil
	default:
		return "", apperrors.Newf(http.StatusMethodNotAllowed, apperrors.CodeInvalidMethod, apperrors.ErrUnsupportedMethod,
			fmt.Sprintf("unsupported method %s", method))
	}
}

func (e *Engine) checkSchema(q *query.ParsedQuery) error {
	if q.Schema == "" || e.exposed[q.Schema] {
		return nil
	}
	schemas := make([]string, 0, len(e.exposed))
	schemas = append(schemas, e.builder.DefaultSchema())
	for _, s := range e.cfg.ExposedSchemas {
		if s != e.builder.DefaultSchema() {
			schemas = append(schemas, s)
		}
	}
	return apperrors.Newf(http.StatusNotAcceptable, apperrors.CodeSchemaNotExposed, apperrors.ErrSchemaNotExposed,
		fmt.Sprintf("the schema must be one of the following: %s", strings.Join(schemas, ", ")))
}

// checkFilterValues runs libinjection over filter values. Values are always
// bound as parameters, so a hit is audited and only rejected when configured.
func (e *Engine) checkFilterValues(ctx context.Context, session *auth.Session, table string, q *query.ParsedQuery) error {
	for _, f := range q.Filters {
		result := restsql.CheckParameterForInjection(f.Column, f.Value)
		if result == nil {
			continue
		}
		e.auditor.LogInjectionAttempt(ctx, session, audit.SQLInjectionDetails{
			Table:       table,
			Column:      f.Column,
			Value:       fmt.Sprint(result.ParamValue),
			Fingerprint: result.Fingerprint,
			Rejected:    e.cfg.RejectSuspiciousValues,
		})
		if e.cfg.RejectSuspiciousValues {
			return apperrors.Newf(http.StatusBadRequest, apperrors.CodeBadRequest, apperrors.ErrSuspiciousValue,
				fmt.Sprintf("suspicious value for filter %q", f.Column))
		}
	}
	return nil
}

// read runs the SELECT and, when a count is requested, the COUNT
// concurrently.
func (e *Engine) read(ctx context.Context, table string, p *Plan, session *auth.Session) (*response.FormattedResponse, error) {
	stmt, countStmt := p.Statement, p.Count

	var (
		rows  []map[string]any
		total *int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.logStatement("select", table, stmt)
		result, err := e.exec.Execute(gctx, stmt.SQL, session, stmt.Parameters)
		if err != nil {
			return err
		}
		rows = result.Rows
		return nil
	})
	if countStmt != nil {
		g.Go(func() error {
			e.logStatement("count", table, countStmt)
			result, err := e.exec.Execute(gctx, countStmt.SQL, session, countStmt.Parameters)
			if err != nil {
				return err
			}
			n, err := countFrom(result)
			if err != nil {
				return err
			}
			total = &n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return response.Format(rows, p.Query, p.Status, total), nil
}

// write runs the ownership check and executes the compiled mutation.
func (e *Engine) write(ctx context.Context, table string, p *Plan, session *auth.Session) (*response.FormattedResponse, error) {
	op, q, stmt := p.Operation, p.Query, p.Statement

	var result *database.Result
	run := func(ctx context.Context, exec database.Executor, lock bool) error {
		if err := e.guard.CheckWrite(ctx, exec, session, table, op, q, p.Rows, lock); err != nil {
			return err
		}
		e.logStatement(strings.ToLower(string(op)), table, stmt)
		var err error
		result, err = exec.Execute(ctx, stmt.SQL, session, stmt.Parameters)
		return err
	}

	var err error
	runner, canTx := e.exec.(database.TxRunner)
	if canTx && e.cfg.TransactionalWrites && e.guard.IsProtected(table) {
		err = runner.RunInTx(ctx, func(ctx context.Context, exec database.Executor) error {
			return run(ctx, exec, true)
		})
	} else {
		err = run(ctx, e.exec, false)
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrAnonymousWrite) || errors.Is(err, apperrors.ErrOwnershipMismatch) {
			e.auditor.LogWriteDenied(ctx, session, audit.WriteDetails{
				Table:     table,
				Operation: string(op),
				Reason:    err.Error(),
			})
		}
		return nil, err
	}
	if e.cfg.AuditWrites {
		e.auditor.LogWriteExecuted(ctx, session, audit.WriteDetails{
			Table:        table,
			Operation:    string(op),
			RowsAffected: int64(len(result.Rows)),
		})
	}

	var total *int64
	if q.Count != query.CountNone {
		n := int64(len(result.Rows))
		total = &n
	}
	return response.Format(result.Rows, q, p.Status, total), nil
}

func (e *Engine) logStatement(kind, table string, stmt *restsql.CompiledStatement) {
	if ce := e.logger.Check(zap.DebugLevel, "Executing compiled statement"); ce != nil {
		ce.Write(
			zap.String("kind", kind),
			zap.String("table", table),
			zap.String("sql", logging.SanitizeQuery(stmt.SQL)),
			zap.Int("params", len(stmt.Parameters)))
	}
}

// countFrom reads the count column of a COUNT result.
func countFrom(result *database.Result) (int64, error) {
	if len(result.Rows) == 0 {
		return 0, nil
	}
	switch v := result.Rows[0]["count"].(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		return strconv.ParseInt(v, 10, 64)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("unexpected count type %T", v)
	}
}
