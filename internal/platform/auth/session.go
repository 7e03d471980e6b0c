package auth

import "context"

type contextKey string

const sessionKey contextKey = "session"

// Role names issued by the identity service.
const (
	RoleSuperAdmin   = "super_admin"
	RoleAdmin        = "admin"
	RoleReceptionist = "receptionist"
	RoleProfessional = "professional"
)

// Session is the authenticated caller of one request. It is built by the auth
// middleware and travels in the request context; nothing stores it globally.
type Session struct {
	UserID   string
	TenantID string
	Roles    []string
}

// HasRole reports whether the session carries role.
func (s *Session) HasRole(role string) bool {
	if s == nil {
		return false
	}
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the request session, or nil when unauthenticated.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey).(*Session)
	return s
}

func UserIDFromContext(ctx context.Context) string {
	if s := SessionFromContext(ctx); s != nil {
		return s.UserID
	}
	return ""
}

func RolesFromContext(ctx context.Context) []string {
	if s := SessionFromContext(ctx); s != nil {
		return s.Roles
	}
	return nil
}
