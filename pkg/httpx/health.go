package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RegisterHealth mounts /health/live and /health/ready. Readiness pings db.
func RegisterHealth(e *echo.Echo, service string, db Pinger) {
	e.GET("/health/live", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"service": service,
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})

	e.GET("/health/ready", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("readiness check failed")
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status":  "unavailable",
				"service": service,
			})
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ready",
			"service": service,
		})
	})
}
