package auth

import (
	"context"
	"slices"

	"github.com/google/uuid"
)

// Role is the database role a request executes as.
type Role string

const (
	RoleAnon          Role = "anon"
	RoleAuthenticated Role = "authenticated"
	RoleServiceRole   Role = "service_role"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAnon, RoleAuthenticated, RoleServiceRole:
		return true
	}
	return false
}

// Session is the caller identity a request runs under. The REST core treats
// it as opaque apart from Role and UserID.
type Session struct {
	ProjectID uuid.UUID
	// UserID is the token subject; empty for anonymous callers.
	UserID string
	Role   Role
	// Claims are the verified token claims, nil for anonymous callers.
	Claims *Claims
}

// AnonymousSession returns the session used for requests without a token.
func AnonymousSession(projectID uuid.UUID) *Session {
	return &Session{ProjectID: projectID, Role: RoleAnon}
}

// NewSession derives a Session from verified claims. The role comes from
// the "role" claim, or from the application roles when that names
// service_role, and defaults to authenticated. A token without a subject
// cannot act as a user and is downgraded to anon unless it is a service
// token. fallbackProject is used when the token carries no valid pid.
func NewSession(claims *Claims, fallbackProject uuid.UUID) *Session {
	s := &Session{
		ProjectID: fallbackProject,
		UserID:    claims.Subject,
		Role:      RoleAuthenticated,
		Claims:    claims,
	}

	if pid, err := uuid.Parse(claims.ProjectID); err == nil {
		s.ProjectID = pid
	}

	switch {
	case Role(claims.Role).Valid():
		s.Role = Role(claims.Role)
	case slices.Contains(claims.Roles, string(RoleServiceRole)):
		s.Role = RoleServiceRole
	}

	if s.UserID == "" && s.Role == RoleAuthenticated {
		s.Role = RoleAnon
	}

	return s
}

// IsService reports whether the session bypasses application authorization.
func (s *Session) IsService() bool {
	return s != nil && s.Role == RoleServiceRole
}

// IsAnonymous reports whether the session has no usable user identity.
func (s *Session) IsAnonymous() bool {
	return s == nil || s.Role == RoleAnon || s.UserID == ""
}

// Elevated returns a copy of the session running as service_role. It keeps
// the project and user so statements can still be attributed.
func (s *Session) Elevated() *Session {
	if s == nil {
		return &Session{Role: RoleServiceRole}
	}
	elevated := *s
	elevated.Role = RoleServiceRole
	return &elevated
}

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, SessionKey, s)
}

// GetSession retrieves the Session from the request context.
func GetSession(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(SessionKey).(*Session)
	return s, ok && s != nil
}
