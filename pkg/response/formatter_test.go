package response

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-rest/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-rest/pkg/query"
)

func rowsOf(n int) []map[string]any {
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{"id": i + 1}
	}
	return rows
}

func TestFormat_Representation(t *testing.T) {
	q := query.ParseRequest("", nil)

	resp := Format(rowsOf(2), q, http.StatusOK, nil)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, rowsOf(2), resp.Data)
	assert.Equal(t, ContentTypeJSON, resp.Headers[HeaderContentType])
	assert.Equal(t, HeaderContentRange, resp.Headers[HeaderExposeHeaders])
	assert.NotContains(t, resp.Headers, HeaderContentRange)
}

func TestFormat_NilRowsBecomeEmptyArray(t *testing.T) {
	resp := Format(nil, query.ParseRequest("", nil), http.StatusOK, nil)

	require.NotNil(t, resp.Data)
	assert.Equal(t, []map[string]any{}, resp.Data)
}

func TestFormat_MinimalOverridesStatus(t *testing.T) {
	headers := http.Header{"Prefer": []string{"return=minimal"}}
	q := query.ParseRequest("", headers)

	for _, status := range []int{http.StatusOK, http.StatusCreated} {
		for _, n := range []int{0, 1, 5} {
			t.Run(fmt.Sprintf("%d rows status %d", n, status), func(t *testing.T) {
				resp := Format(rowsOf(n), q, status, nil)
				assert.Equal(t, http.StatusNoContent, resp.Status)
				assert.Nil(t, resp.Data)
			})
		}
	}
}

func TestFormat_SingletonContract(t *testing.T) {
	headers := http.Header{"Accept": []string{query.SingleObjectMediaType}}
	q := query.ParseRequest("", headers)

	tests := []struct {
		rows           int
		status         int
		expectedStatus int
	}{
		{rows: 0, status: http.StatusOK, expectedStatus: http.StatusNotAcceptable},
		{rows: 2, status: http.StatusOK, expectedStatus: http.StatusNotAcceptable},
		{rows: 3, status: http.StatusCreated, expectedStatus: http.StatusNotAcceptable},
		{rows: 1, status: http.StatusOK, expectedStatus: http.StatusOK},
		{rows: 1, status: http.StatusCreated, expectedStatus: http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d rows", tt.rows), func(t *testing.T) {
			resp := Format(rowsOf(tt.rows), q, tt.status, nil)
			assert.Equal(t, tt.expectedStatus, resp.Status)

			if tt.rows == 1 {
				assert.Equal(t, map[string]any{"id": 1}, resp.Data)
				return
			}
			body, ok := resp.Data.(ErrorBody)
			require.True(t, ok)
			assert.Equal(t, "PGRST116", body.Code)
			assert.Equal(t, "JSON object requested, multiple (or no) rows returned", body.Message)
		})
	}
}

func TestFormat_MinimalWinsOverSingleton(t *testing.T) {
	headers := http.Header{
		"Accept": []string{query.SingleObjectMediaType},
		"Prefer": []string{"return=minimal"},
	}
	resp := Format(rowsOf(3), query.ParseRequest("", headers), http.StatusOK, nil)

	assert.Equal(t, http.StatusNoContent, resp.Status)
	assert.Nil(t, resp.Data)
}

func TestFormat_ContentRange(t *testing.T) {
	total := int64(120)

	tests := []struct {
		name     string
		raw      string
		rows     int
		total    *int64
		expected string
	}{
		{name: "first page", raw: "count=exact&limit=10", rows: 10, total: &total, expected: "0-9/120"},
		{name: "offset page", raw: "count=exact&limit=10&offset=20", rows: 10, total: &total, expected: "20-29/120"},
		{name: "empty page", raw: "count=exact&offset=500", rows: 0, total: &total, expected: "*/120"},
		{name: "no count requested", raw: "limit=10", rows: 10, total: &total},
		{name: "count requested without total", raw: "count=exact", rows: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := Format(rowsOf(tt.rows), query.ParseRequest(tt.raw, nil), http.StatusOK, tt.total)
			if tt.expected == "" {
				assert.NotContains(t, resp.Headers, HeaderContentRange)
				return
			}
			assert.Equal(t, tt.expected, resp.Headers[HeaderContentRange])
		})
	}
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "missing filters",
			err:            apperrors.BadRequest(apperrors.ErrMissingFilters),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   apperrors.CodeBadRequest,
		},
		{
			name:           "wrapped api error",
			err:            fmt.Errorf("process: %w", apperrors.InvalidBody(apperrors.ErrMissingBody)),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   apperrors.CodeInvalidBody,
		},
		{
			name:           "unique violation",
			err:            &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"},
			expectedStatus: http.StatusConflict,
			expectedCode:   "23505",
		},
		{
			name:           "undefined table",
			err:            fmt.Errorf("execute: %w", &pgconn.PgError{Code: "42P01", Message: `relation "nope" does not exist`}),
			expectedStatus: http.StatusNotFound,
			expectedCode:   "42P01",
		},
		{
			name:           "permission denied",
			err:            &pgconn.PgError{Code: "42501", Message: "permission denied for table instruments"},
			expectedStatus: http.StatusForbidden,
			expectedCode:   "42501",
		},
		{
			name:           "unknown error",
			err:            errors.New("connection reset"),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   apperrors.CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := FromError(tt.err)
			assert.Equal(t, tt.expectedStatus, resp.Status)

			body, ok := resp.Data.(ErrorBody)
			require.True(t, ok)
			assert.Equal(t, tt.expectedCode, body.Code)
			assert.NotEmpty(t, body.Message)
			assert.Equal(t, ContentTypeJSON, resp.Headers[HeaderContentType])
		})
	}
}

func TestFromError_DoesNotLeakInternalMessages(t *testing.T) {
	resp := FromError(errors.New("dial tcp 10.0.0.5:5432: password authentication failed"))

	body := resp.Data.(ErrorBody)
	assert.NotContains(t, body.Message, "password")
}
