package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Authorize returns a middleware that enforces that the authenticated user
// holds one of the given roles.  An empty role list means any authenticated
// identity is acceptable, which is what self-service endpoints use.  It
// assumes Authenticate ran earlier in the chain; a request that somehow
// reaches it without an identity is rejected as unauthenticated, not
// forbidden.
func Authorize(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(CtxRole).(string)
			if !ok || role == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"success": false,
					"message": "Authentication required",
				})
			}
			if len(allowed) > 0 && !allowed[role] {
				return c.JSON(http.StatusForbidden, echo.Map{
					"success": false,
					"message": "You do not have permission to access this resource",
				})
			}
			return next(c)
		}
	}
}
