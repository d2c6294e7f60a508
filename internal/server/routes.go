package server

import (
	"github.com/OFFIS-RIT/rquest-bridge/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	e.GET("/status", routes.GetStatusHandler)
	e.GET("/metrics", routes.GetMetricsHandler)
}
