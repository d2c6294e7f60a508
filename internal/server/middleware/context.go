package middleware

import (
	"github.com/OFFIS-RIT/rquest-bridge/internal/bridge"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// StatusProvider reports what the poller is doing. *bridge.Poller is one.
type StatusProvider interface {
	Status() bridge.Status
}

type App struct {
	Poller   StatusProvider
	Registry *prometheus.Registry
	Version  string
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
