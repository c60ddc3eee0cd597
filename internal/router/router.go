package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/auth"
	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/handler"
	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/middleware"
	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/model"
)

// Register wires every route under the /api prefix.  The rate limiter
// applies to the whole prefix; authentication and authorization are
// composed per route group.  Logout deliberately sits outside the
// authenticated group: an already-expired session must still be able to
// log out, so the handler parses the bearer token itself, best-effort.
func Register(e *echo.Echo, a *handler.AuthHandler, u *handler.UserHandler, engine *auth.Engine, rateLimit echo.MiddlewareFunc) {
	api := e.Group("/api", rateLimit)

	api.GET("/health", handler.Health)

	// Unauthenticated session operations.  The refresh token travels in
	// the body, not the Authorization header.
	ag := api.Group("/auth")
	ag.POST("/register", a.Register)
	ag.POST("/login", a.Login)
	ag.POST("/refresh-token", a.Refresh)
	ag.POST("/logout", a.Logout)

	// Self-service endpoints: any authenticated role.
	me := api.Group("/users", middleware.Authenticate(engine), middleware.Authorize())
	me.GET("/profile", u.Profile)
	me.PUT("/profile", u.UpdateProfile)

	// Admin-only user management.
	admin := api.Group("/users", middleware.Authenticate(engine), middleware.Authorize(model.RoleAdmin))
	admin.GET("", u.List)
	admin.GET("/:id", u.Get)
	admin.PUT("/:id", u.Update)
	admin.DELETE("/:id", u.Delete)
}
