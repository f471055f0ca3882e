// Package response shapes executed rows into the REST wire contract:
// status code, headers and body.
package response

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ekaya-rest/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-rest/pkg/query"
)

// Response headers.
const (
	HeaderContentType   = "Content-Type"
	HeaderExposeHeaders = "Access-Control-Expose-Headers"
	HeaderContentRange  = "Content-Range"

	ContentTypeJSON = "application/json"
)

// Singleton mismatch envelope.
const singleObjectMessage = "JSON object requested, multiple (or no) rows returned"

// FormattedResponse is the final response for one request. It is built once
// by the formatter and not modified afterwards.
type FormattedResponse struct {
	// Data is nil (204), a single row, an error envelope, or a non-nil slice.
	Data    any
	Status  int
	Headers map[string]string
}

// ErrorBody is the JSON envelope for every rejection.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// Format applies the return, singleton and count preferences to rows.
// totalCount is only used when q requests a count.
func Format(rows []map[string]any, q *query.ParsedQuery, status int, totalCount *int64) *FormattedResponse {
	headers := baseHeaders()

	if q.Count != query.CountNone && totalCount != nil {
		headers[HeaderContentRange] = ContentRange(q.OffsetOrZero(), len(rows), *totalCount)
	}

	if q.PreferReturn == query.ReturnMinimal {
		return &FormattedResponse{Data: nil, Status: http.StatusNoContent, Headers: headers}
	}

	if q.ReturnSingle {
		if len(rows) != 1 {
			return &FormattedResponse{
				Data:    ErrorBody{Code: apperrors.CodeSingleObject, Message: singleObjectMessage},
				Status:  http.StatusNotAcceptable,
				Headers: headers,
			}
		}
		return &FormattedResponse{Data: rows[0], Status: status, Headers: headers}
	}

	if rows == nil {
		rows = []map[string]any{}
	}
	return &FormattedResponse{Data: rows, Status: status, Headers: headers}
}

// ContentRange renders "<first>-<last>/<total>". An empty page has no first
// or last row and renders as "*/<total>".
func ContentRange(offset, length int, total int64) string {
	if length == 0 {
		return fmt.Sprintf("*/%d", total)
	}
	return fmt.Sprintf("%d-%d/%d", offset, offset+length-1, total)
}

// FromError builds the error envelope response for err. APIErrors keep
// their status and code; PostgreSQL errors are mapped by SQLSTATE; anything
// else is a 500.
func FromError(err error) *FormattedResponse {
	body, status := errorBody(err)
	return &FormattedResponse{Data: body, Status: status, Headers: baseHeaders()}
}

func errorBody(err error) (ErrorBody, int) {
	if apiErr, ok := apperrors.AsAPIError(err); ok {
		return ErrorBody{
			Code:    apiErr.Code,
			Message: apiErr.Error(),
			Details: apiErr.Details,
			Hint:    apiErr.Hint,
		}, apiErr.Status
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return ErrorBody{
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Details: pgErr.Detail,
			Hint:    pgErr.Hint,
		}, StatusForSQLState(pgErr.Code)
	}

	return ErrorBody{Code: apperrors.CodeInternal, Message: "internal server error"}, http.StatusInternalServerError
}

// StatusForSQLState maps a PostgreSQL error code to an HTTP status.
func StatusForSQLState(code string) int {
	switch code {
	case "23505", "23503":
		return http.StatusConflict
	case "42P01":
		return http.StatusNotFound
	case "42703", "22P02", "42883", "23502", "23514", "22007", "22003":
		return http.StatusBadRequest
	case "42501":
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func baseHeaders() map[string]string {
	return map[string]string{
		HeaderContentType:   ContentTypeJSON,
		HeaderExposeHeaders: HeaderContentRange,
	}
}
