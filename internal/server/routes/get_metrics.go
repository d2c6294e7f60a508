package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/rquest-bridge/internal/server/middleware"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func GetMetricsHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	if app.Registry == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Metrics not enabled"})
	}

	handler := promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{})
	handler.ServeHTTP(c.Response(), c.Request())
	return nil
}
