package httpx

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RateLimiter limits each client IP to rps requests per second with the given
// burst. It returns nil when rps is not positive.
func RateLimiter(rps float64, burst int) echo.MiddlewareFunc {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}

	config := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(rps),
				Burst:     burst,
				ExpiresIn: 3 * time.Minute,
			}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return WriteProblem(c, http.StatusForbidden, "Client could not be identified.")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return WriteProblem(c, http.StatusTooManyRequests, "Rate limit exceeded.")
		},
	}
	return middleware.RateLimiterWithConfig(config)
}
