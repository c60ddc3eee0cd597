package middleware // middleware provides shared request processing for handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/auth"
)

// Context keys under which Authenticate stores the decoded claims.
const (
	CtxUserID = "user_id"
	CtxRole   = "role"
)

// Authenticate returns an Echo middleware that resolves the Bearer access
// token into an identity.  Order matters: the revocation check runs before
// signature verification so a blacklisted token is rejected even while it
// still verifies.  Every credential failure produces the same 401 body so
// the presenter cannot tell which check failed; the reasons land in
// internal logs via the engine.
func Authenticate(engine *auth.Engine) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"success": false,
					"message": "Authentication required. No token provided.",
				})
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()

			revoked, err := engine.IsRevoked(ctx, raw)
			if err != nil || revoked {
				return unauthorized(c)
			}
			claims, err := engine.Verify(raw, auth.KindAccess)
			if err != nil {
				return unauthorized(c)
			}

			// The claims are a point-in-time snapshot from issuance; role
			// changes only take effect once a fresh token is issued.
			c.Set(CtxUserID, claims.UserID)
			c.Set(CtxRole, claims.Role)
			return next(c)
		}
	}
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{
		"success": false,
		"message": "Invalid or expired token",
	})
}

// UserID returns the authenticated user's id from the context, or 0 when
// the request is unauthenticated.
func UserID(c echo.Context) uint64 {
	if v, ok := c.Get(CtxUserID).(uint64); ok {
		return v
	}
	return 0
}
