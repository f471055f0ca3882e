package database

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-rest/pkg/auth"
)

// Roles maps session roles to database roles. When Switch is false the
// connection keeps its login role and only the request settings are applied.
type Roles struct {
	Anon          string
	Authenticated string
	Service       string
	Switch        bool
}

// DefaultRoles uses the session role names as database role names.
func DefaultRoles() Roles {
	return Roles{
		Anon:          string(auth.RoleAnon),
		Authenticated: string(auth.RoleAuthenticated),
		Service:       string(auth.RoleServiceRole),
		Switch:        true,
	}
}

// For returns the database role for a session role.
func (r Roles) For(role auth.Role) string {
	switch role {
	case auth.RoleServiceRole:
		return r.Service
	case auth.RoleAuthenticated:
		return r.Authenticated
	default:
		return r.Anon
	}
}

// sessionSettings returns one statement that applies the session to the
// current transaction. Every setting is transaction-local (is_local = true),
// so nothing leaks to the next user of the pooled connection.
// Row-level security policies read these through current_setting().
func sessionSettings(session *auth.Session, roles Roles) (string, []any, error) {
	if session == nil {
		return "", nil, fmt.Errorf("session is required")
	}

	claims := "{}"
	if session.Claims != nil {
		b, err := json.Marshal(session.Claims)
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode claims: %w", err)
		}
		claims = string(b)
	}

	projectID := ""
	if session.ProjectID != uuid.Nil {
		projectID = session.ProjectID.String()
	}

	var settings []string
	var params []any
	set := func(name, value string) {
		params = append(params, value)
		settings = append(settings, fmt.Sprintf("set_config('%s', $%d, true)", name, len(params)))
	}

	if roles.Switch {
		set("role", roles.For(session.Role))
	}
	set("request.jwt.claims", claims)
	set("request.jwt.claim.sub", session.UserID)
	set("request.jwt.claim.role", string(session.Role))
	set("app.current_project_id", projectID)

	return "SELECT " + strings.Join(settings, ", "), params, nil
}
