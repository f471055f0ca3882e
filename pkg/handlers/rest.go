package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rest/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-rest/pkg/auth"
	"github.com/ekaya-inc/ekaya-rest/pkg/logging"
	"github.com/ekaya-inc/ekaya-rest/pkg/middleware"
	"github.com/ekaya-inc/ekaya-rest/pkg/response"
)

// MaxBodyBytes bounds request bodies for writes.
const MaxBodyBytes = 10 << 20

// RESTPrefix is the mount point of the table routes.
const RESTPrefix = "/rest/v1"

// Processor runs one REST request. *engine.Engine implements it.
type Processor interface {
	Process(ctx context.Context, method, table, rawQuery string, headers http.Header, body []byte, session *auth.Session) (*response.FormattedResponse, error)
}

// RESTHandler exposes tables under /rest/v1/{table}.
type RESTHandler struct {
	engine Processor
	logger *zap.Logger
}

// NewRESTHandler creates a RESTHandler backed by engine.
func NewRESTHandler(engine Processor, logger *zap.Logger) *RESTHandler {
	return &RESTHandler{engine: engine, logger: logger.Named("rest")}
}

// RegisterRoutes mounts the table routes. Every method reaches the engine,
// which answers unsupported ones with 405.
func (h *RESTHandler) RegisterRoutes(r chi.Router) {
	r.Route(RESTPrefix, func(r chi.Router) {
		r.HandleFunc("/{table}", h.Handle)
	})
}

// Handle processes a request for the table named in the path.
func (h *RESTHandler) Handle(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	session, err := auth.RequireSessionFromContext(r.Context())
	if err != nil {
		h.logger.Error("Session middleware did not run", zap.String("path", r.URL.Path))
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		resp := response.FromError(err)
		_ = WriteFormatted(w, resp, true)
		return
	}

	resp, err := h.engine.Process(r.Context(), r.Method, table, r.URL.RawQuery, r.Header, body, session)
	if err != nil {
		resp = response.FromError(err)
		fields := []zap.Field{
			zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
			zap.String("method", r.Method),
			zap.String("table", table),
			zap.Int("status", resp.Status),
			zap.String("error", logging.SanitizeError(err)),
		}
		if resp.Status >= http.StatusInternalServerError {
			h.logger.Error("Request failed", fields...)
		} else {
			h.logger.Debug("Request rejected by database", fields...)
		}
	}

	if err := WriteFormatted(w, resp, r.Method != http.MethodHead); err != nil {
		h.logger.Error("Failed to encode response", zap.String("table", table), zap.Error(err))
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return nil, nil
	}
	defer r.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperrors.Newf(http.StatusRequestEntityTooLarge, apperrors.CodeInvalidBody, apperrors.ErrInvalidBody,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return nil, apperrors.InvalidBody(fmt.Errorf("failed to read request body: %w", err))
	}
	return body, nil
}
