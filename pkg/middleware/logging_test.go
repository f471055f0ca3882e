package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger_LogsFirstStatus(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    int
	}{
		{
			name:    "implicit ok",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("[]")) },
			want:    http.StatusOK,
		},
		{
			name:    "created",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusCreated) },
			want:    http.StatusCreated,
		},
		{
			name: "second WriteHeader ignored",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.WriteHeader(http.StatusInternalServerError)
			},
			want: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			rec := httptest.NewRecorder()
			RequestLogger(zap.New(core))(tt.handler).
				ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rest/v1/instruments", nil))

			if rec.Code != tt.want {
				t.Errorf("expected response status %d, got %d", tt.want, rec.Code)
			}
			if logs.Len() != 1 {
				t.Fatalf("expected one log entry, got %d", logs.Len())
			}
			entry := logs.All()[0]
			if entry.Message != "HTTP request" {
				t.Errorf("unexpected message %q", entry.Message)
			}
			fields := entry.ContextMap()
			if fields["status"] != int64(tt.want) {
				t.Errorf("expected logged status %d, got %v", tt.want, fields["status"])
			}
			if fields["method"] != http.MethodPost || fields["path"] != "/rest/v1/instruments" {
				t.Errorf("unexpected method/path fields: %v %v", fields["method"], fields["path"])
			}
		})
	}
}

func TestRequestLogger_NilLoggerReturnsHandler(t *testing.T) {
	var called bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	RequestLogger(nil)(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("expected the wrapped handler to run")
	}
}

func TestResponseWriter_RecordsOnlyFirstHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusNoContent)
	rw.WriteHeader(http.StatusConflict)
	if _, err := rw.Write(nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if rw.statusCode != http.StatusNoContent || rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 recorded and sent, got %d and %d", rw.statusCode, rec.Code)
	}
	if rw.Unwrap() != rec {
		t.Error("expected Unwrap to return the underlying writer")
	}
}

func TestRequestLogger_AssignsRequestID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	var ctxID string
	handler := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rest/v1/instruments", nil))

	headerID := rec.Header().Get(RequestIDHeader)
	if _, err := uuid.Parse(headerID); err != nil {
		t.Fatalf("expected uuid request id, got %q", headerID)
	}
	if ctxID != headerID {
		t.Errorf("expected context id %q to match header %q", ctxID, headerID)
	}
	if got := logs.All()[0].ContextMap()["request_id"]; got != headerID {
		t.Errorf("expected logged request_id %q, got %v", headerID, got)
	}
}

func TestRequestLogger_KeepsValidIncomingRequestID(t *testing.T) {
	incoming := uuid.NewString()
	handler := RequestLogger(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, incoming)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != incoming {
		t.Errorf("expected incoming id %q to be kept, got %q", incoming, got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid\r\ninjected")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got == "not-a-uuid\r\ninjected" {
		t.Error("expected malformed incoming id to be replaced")
	}
}

func TestRequestLogger_ServerErrorsLogAtWarn(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	handler := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	ok := httptest.NewRecorder()
	RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(ok, httptest.NewRequest(http.MethodGet, "/", nil))

	if logs.Len() != 1 {
		t.Fatalf("expected only the 503 to be logged at warn, got %d entries", logs.Len())
	}
	if logs.All()[0].Level != zap.WarnLevel {
		t.Errorf("expected warn level, got %s", logs.All()[0].Level)
	}
}
