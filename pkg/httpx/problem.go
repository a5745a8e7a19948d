package httpx

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/jacobmousa/OrderCatalog/pkg/correlation"
)

// Problem is the error body returned by both services.
type Problem struct {
	Title         string              `json:"title"`
	Status        int                 `json:"status"`
	Errors        map[string][]string `json:"errors,omitempty"`
	CorrelationID string              `json:"correlationId,omitempty"`
}

// WriteProblem writes a problem body with the given status.
func WriteProblem(c echo.Context, status int, title string) error {
	return c.JSON(status, Problem{Title: title, Status: status})
}

// WriteValidationProblem writes a 400 with field-keyed messages.
func WriteValidationProblem(c echo.Context, errs map[string][]string) error {
	return c.JSON(http.StatusBadRequest, Problem{
		Title:  "One or more validation errors occurred.",
		Status: http.StatusBadRequest,
		Errors: errs,
	})
}

// WriteInternalError logs err and writes a 500 that only exposes the
// correlation id.
func WriteInternalError(c echo.Context, err error) error {
	ctx := c.Request().Context()
	zerolog.Ctx(ctx).Error().Err(err).Str("path", c.Path()).Msg("unhandled error")

	id, _ := correlation.FromContext(ctx)
	return c.JSON(http.StatusInternalServerError, Problem{
		Title:         "An unexpected error occurred.",
		Status:        http.StatusInternalServerError,
		CorrelationID: id,
	})
}

// ErrorHandler replaces echo's default so router errors and recovered panics
// share the problem shape.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code < http.StatusInternalServerError {
		title := http.StatusText(he.Code)
		if msg, ok := he.Message.(string); ok && msg != "" {
			title = msg
		}
		_ = WriteProblem(c, he.Code, title)
		return
	}

	_ = WriteInternalError(c, err)
}
