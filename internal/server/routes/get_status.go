package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/rquest-bridge/internal/bridge"
	"github.com/OFFIS-RIT/rquest-bridge/internal/server/middleware"

	"github.com/labstack/echo/v4"
)

type statusResponse struct {
	Version string `json:"version,omitempty"`
	bridge.Status
}

func GetStatusHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	if app.Poller == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Poller not running"})
	}

	return c.JSON(http.StatusOK, statusResponse{
		Version: app.Version,
		Status:  app.Poller.Status(),
	})
}
