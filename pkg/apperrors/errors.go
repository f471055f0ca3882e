package apperrors

import (
	"errors"
	"net/http"
)

var (
	ErrMissingFilters      = errors.New("UPDATE/DELETE requires WHERE conditions")
	ErrMissingBody         = errors.New("request body is required")
	ErrInvalidBody         = errors.New("request body must be a JSON object or an array of objects")
	ErrAnonymousWrite      = errors.New("authentication required for write")
	ErrOwnershipMismatch   = errors.New("row ownership mismatch")
	ErrUnsupportedMethod   = errors.New("unsupported method")
	ErrSchemaNotExposed    = errors.New("schema not exposed")
	ErrInvalidStatement    = errors.New("invalid compiled statement")
	ErrSuspiciousValue     = errors.New("suspicious filter value")
	ErrUnsupportedOperator = errors.New("unsupported operator")
)

// Error codes carried in the response envelope. PGRST codes follow the
// conventions REST clients already branch on; 42501 is PostgreSQL's
// insufficient_privilege.
const (
	CodeBadRequest       = "PGRST100"
	CodeInvalidBody      = "PGRST102"
	CodeInvalidMethod    = "PGRST117"
	CodeSchemaNotExposed = "PGRST106"
	CodeSingleObject     = "PGRST116"
	CodeInsufficientPriv = "42501"
	CodeInternal         = "PGRST000"
)

// APIError is a rejection surfaced to the client as {code, message, details, hint}.
// It wraps a sentinel so callers can use errors.Is.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details string
	Hint    string
	Err     error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return http.StatusText(e.Status)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// New creates an APIError wrapping err, using err's text as the message.
func New(status int, code string, err error) *APIError {
	return &APIError{Status: status, Code: code, Message: err.Error(), Err: err}
}

// Newf creates an APIError with a custom message wrapping err.
func Newf(status int, code string, err error, message string) *APIError {
	return &APIError{Status: status, Code: code, Message: message, Err: err}
}

// BadRequest is a 400 PGRST100 rejection.
func BadRequest(err error) *APIError {
	return New(http.StatusBadRequest, CodeBadRequest, err)
}

// InvalidBody is a 400 PGRST102 rejection.
func InvalidBody(err error) *APIError {
	return New(http.StatusBadRequest, CodeInvalidBody, err)
}

// AsAPIError returns the APIError in err's chain, if any.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
