package handler // declare the package name; contains HTTP handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Health is a simple health-check endpoint used by load balancers and
// monitoring systems to verify that the service is running.
func Health(c echo.Context) error {
	return respond(c, http.StatusOK, "Service is healthy", echo.Map{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
