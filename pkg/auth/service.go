package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rest/pkg/logging"
)

var (
	ErrMissingAuthorization = errors.New("no bearer token or apikey header")
	ErrInvalidAuthFormat    = errors.New("authorization header is not a bearer token")
	ErrAnonymousDisabled    = errors.New("anonymous access is disabled")
)

// APIKeyHeader carries a token for clients that cannot set Authorization.
const APIKeyHeader = "apikey"

// AuthService resolves who a request runs as. Middleware only translates
// its errors into HTTP responses.
type AuthService interface {
	// ValidateRequest verifies the request's token, taken from a Bearer
	// Authorization header or else the apikey header, and returns its claims
	// along with the raw token.
	ValidateRequest(r *http.Request) (*Claims, string, error)

	// SessionForRequest resolves the Session a request runs under. Requests
	// without a token get an anonymous session when anonymous access is
	// allowed.
	SessionForRequest(r *http.Request) (*Session, error)
}

// ServiceConfig configures session resolution.
type ServiceConfig struct {
	AllowAnonymous   bool
	DefaultProjectID uuid.UUID
}

type authService struct {
	jwksClient JWKSClientInterface
	cfg        ServiceConfig
	logger     *zap.Logger
}

// NewAuthService verifies tokens with jwksClient and builds sessions per cfg.
func NewAuthService(jwksClient JWKSClientInterface, cfg ServiceConfig, logger *zap.Logger) AuthService {
	return &authService{
		jwksClient: jwksClient,
		cfg:        cfg,
		logger:     logger,
	}
}

func (s *authService) ValidateRequest(r *http.Request) (*Claims, string, error) {
	token, source, err := bearerToken(r)
	if err != nil {
		s.logger.Debug("No usable token in request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		return nil, "", err
	}

	claims, err := s.jwksClient.ValidateToken(token)
	if err != nil {
		s.logger.Debug("Token rejected",
			zap.String("path", r.URL.Path),
			zap.String("token_source", source),
			zap.String("error", logging.SanitizeError(err)))
		return nil, "", err
	}
	return claims, token, nil
}

// bearerToken prefers the Authorization header. A present but malformed
// Authorization header is an error even when apikey is also set.
func bearerToken(r *http.Request) (token, source string, err error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" || strings.Contains(token, " ") {
			return "", "", ErrInvalidAuthFormat
		}
		return token, "header", nil
	}
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return key, "apikey", nil
	}
	return "", "", ErrMissingAuthorization
}

// SessionForRequest resolves the request's Session.
func (s *authService) SessionForRequest(r *http.Request) (*Session, error) {
	claims, _, err := s.ValidateRequest(r)
	if errors.Is(err, ErrMissingAuthorization) {
		if !s.cfg.AllowAnonymous {
			return nil, ErrAnonymousDisabled
		}
		return AnonymousSession(s.cfg.DefaultProjectID), nil
	}
	if err != nil {
		return nil, err
	}

	return NewSession(claims, s.cfg.DefaultProjectID), nil
}

var _ AuthService = (*authService)(nil)
