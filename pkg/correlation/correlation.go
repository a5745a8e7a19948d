// Package correlation carries a per-request correlation token from the inbound
// request, through the request context, onto outbound HTTP calls and back on the
// response so a single logical operation can be followed across both services.
package correlation

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// HeaderName is the header used on requests, responses and outbound calls.
const HeaderName = "X-Correlation-ID"

// LogField is the structured log key holding the token.
const LogField = "correlation_id"

type ctxKey struct{}

// NewID mints a fresh opaque token.
func NewID() string {
	return uuid.NewString()
}

// NewContext returns a copy of ctx carrying id.
func NewContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the token stored in ctx, if any.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Middleware reads the correlation header (minting a token when it is absent or
// blank), echoes it on the response, and installs both the token and a child
// logger tagged with it into the request context.
func Middleware(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			id := strings.TrimSpace(req.Header.Get(HeaderName))
			if id == "" {
				id = NewID()
			}
			c.Response().Header().Set(HeaderName, id)

			reqLogger := logger.With().Str(LogField, id).Logger()
			ctx := NewContext(req.Context(), id)
			ctx = reqLogger.WithContext(ctx)

			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

// Transport is an http.RoundTripper that copies the token from the request
// context onto the outbound request unless the request already carries one.
type Transport struct {
	Base http.RoundTripper
}

// NewTransport wraps base; a nil base means http.DefaultTransport.
func NewTransport(base http.RoundTripper) *Transport {
	return &Transport{Base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if id, ok := FromContext(req.Context()); ok && strings.TrimSpace(req.Header.Get(HeaderName)) == "" {
		// a RoundTripper must not mutate the caller's request
		req = req.Clone(req.Context())
		req.Header.Set(HeaderName, id)
	}
	return t.base().RoundTrip(req)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
