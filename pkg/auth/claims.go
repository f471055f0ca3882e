// Package auth turns bearer tokens into the Session every REST request runs
// under. Tokens are verified against JWKS endpoints (RS256) or a shared
// HS256 secret; verification can be disabled for local development.
package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

// Request context keys set by Middleware.Session.
const (
	ClaimsKey  contextKey = "claims"  // *Claims
	TokenKey   contextKey = "token"   // raw bearer token
	SessionKey contextKey = "session" // *Session
)

// Claims are the registered JWT claims plus the project and role claims
// sessions are built from.
type Claims struct {
	jwt.RegisteredClaims
	ProjectID string   `json:"pid,omitempty"`   // Project UUID
	Email     string   `json:"email,omitempty"` // User email address
	Role      string   `json:"role,omitempty"`  // Database role: anon, authenticated or service_role
	Roles     []string `json:"roles,omitempty"` // Application roles within the project
}

// GetClaims returns the verified claims of an authenticated request.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// GetToken returns the bearer token an authenticated request presented.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}
