package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that checks if the user has at least one of
// the specified roles. super_admin passes every check; admin passes every check
// except the ones that name super_admin alone.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	superOnly := len(roles) == 1 && roles[0] == RoleSuperAdmin
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s := SessionFromContext(c.Request().Context())
			if s == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if s.HasRole(RoleSuperAdmin) || (!superOnly && s.HasRole(RoleAdmin)) {
				return next(c)
			}
			for _, required := range roles {
				if s.HasRole(required) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
