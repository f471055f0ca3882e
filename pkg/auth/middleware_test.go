package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

// mockAuthService is a mock implementation of AuthService for testing.
type mockAuthService struct {
	session    *Session
	sessionErr error
}

func (m *mockAuthService) ValidateRequest(r *http.Request) (*Claims, string, error) {
	if m.sessionErr != nil {
		return nil, "", m.sessionErr
	}
	return m.session.Claims, "test-token", nil
}

func (m *mockAuthService) SessionForRequest(r *http.Request) (*Session, error) {
	if m.sessionErr != nil {
		return nil, m.sessionErr
	}
	return m.session, nil
}

func TestMiddleware_Session_Success(t *testing.T) {
	claims := &Claims{ProjectID: testProjectID.String()}
	claims.Subject = "user-123"
	session := NewSession(claims, testProjectID)
	middleware := NewMiddleware(&mockAuthService{session: session}, zap.NewNop())

	var handlerCalled bool
	var ctxSession *Session
	var ctxClaims *Claims

	handler := middleware.Session(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		ctxSession, _ = GetSession(r.Context())
		ctxClaims, _ = GetClaims(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rest/v1/instruments", nil))

	if !handlerCalled {
		t.Fatal("expected handler to be called")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if ctxSession != session {
		t.Error("expected session to be set in context")
	}
	if ctxClaims != claims {
		t.Error("expected claims to be set in context")
	}
	if got := GetUserIDFromContext(WithSession(t.Context(), session)); got != "user-123" {
		t.Errorf("expected user id from context, got %q", got)
	}
}

func TestMiddleware_Session_Anonymous(t *testing.T) {
	middleware := NewMiddleware(&mockAuthService{session: AnonymousSession(testProjectID)}, zap.NewNop())

	var ctxClaimsFound bool
	var role Role
	handler := middleware.Session(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ctxClaimsFound = GetClaims(r.Context())
		s, _ := GetSession(r.Context())
		role = s.Role
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if ctxClaimsFound {
		t.Error("expected no claims for anonymous session")
	}
	if role != RoleAnon {
		t.Errorf("expected anon role, got %q", role)
	}
}

func TestMiddleware_Session_Unauthorized(t *testing.T) {
	middleware := NewMiddleware(&mockAuthService{sessionErr: errors.New("token expired")}, zap.NewNop())

	handlerCalled := false
	handler := middleware.Session(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if handlerCalled {
		t.Error("expected handler not to be called")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["code"] != "unauthorized" {
		t.Errorf("expected code 'unauthorized', got %q", body["code"])
	}
}
