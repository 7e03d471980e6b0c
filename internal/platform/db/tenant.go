package db

import (
	"context"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	TenantIDKey contextKey = "tenant_id"
	TxKey       contextKey = "db_tx"
)

var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidTenantID reports whether id is an acceptable tenant identifier.
func ValidTenantID(id string) bool {
	return tenantIDPattern.MatchString(id)
}

// TenantMiddleware resolves the tenant for the request and stores it in the
// request context. Every repository scopes its queries by this value.
//
// A tenant claim in the verified token always wins. The X-Tenant-ID header and
// the tenant_id query parameter are only honoured when allowOverride is set
// (development), so a user can never address another clinic's rows.
func TenantMiddleware(defaultTenant string, allowOverride bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenantID := extractTenantID(c, defaultTenant, allowOverride)

			if !ValidTenantID(tenantID) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant identifier")
			}

			ctx := WithTenant(c.Request().Context(), tenantID)
			logger := zerolog.Ctx(ctx).With().Str("tenant_id", tenantID).Logger()
			ctx = logger.WithContext(ctx)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("tenant_id", tenantID)

			return next(c)
		}
	}
}

func extractTenantID(c echo.Context, defaultTenant string, allowOverride bool) string {
	// 1. Check JWT claim (set by auth middleware)
	if tid, ok := c.Get("jwt_tenant_id").(string); ok && tid != "" {
		return tid
	}

	if allowOverride {
		// 2. Check X-Tenant-ID header
		if tid := c.Request().Header.Get("X-Tenant-ID"); tid != "" {
			return tid
		}

		// 3. Check query parameter
		if tid := c.QueryParam("tenant_id"); tid != "" {
			return tid
		}
	}

	return defaultTenant
}

// WithTenant returns a copy of ctx carrying tenantID.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

// TenantFromContext retrieves the tenant ID from context.
func TenantFromContext(ctx context.Context) string {
	tid, _ := ctx.Value(TenantIDKey).(string)
	return tid
}
