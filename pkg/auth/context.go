package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// GetUserIDFromContext extracts the user ID from the request session.
// Returns empty string for anonymous requests or when no session is set.
func GetUserIDFromContext(ctx context.Context) string {
	s, ok := GetSession(ctx)
	if !ok {
		return ""
	}
	return s.UserID
}

// GetProjectIDFromContext extracts the project ID from the request session.
// Returns uuid.Nil when no session is set.
func GetProjectIDFromContext(ctx context.Context) uuid.UUID {
	s, ok := GetSession(ctx)
	if !ok {
		return uuid.Nil
	}
	return s.ProjectID
}

// RequireSessionFromContext returns the request session or an error when the
// session middleware did not run.
func RequireSessionFromContext(ctx context.Context) (*Session, error) {
	s, ok := GetSession(ctx)
	if !ok {
		return nil, fmt.Errorf("session not found in context")
	}
	return s, nil
}
