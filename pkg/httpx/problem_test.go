package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobmousa/OrderCatalog/pkg/correlation"
)

func TestErrorHandler(t *testing.T) {
	testCases := map[string]struct {
		path           string
		handlerErr     error
		expectedStatus int
		expectedTitle  string
		expectCorrID   bool
	}{
		"should map unknown routes to 404 problem": {
			path:           "/missing",
			expectedStatus: http.StatusNotFound,
			expectedTitle:  "Not Found",
		},
		"should keep client error messages": {
			path:           "/fail",
			handlerErr:     echo.NewHTTPError(http.StatusBadRequest, "bad input"),
			expectedStatus: http.StatusBadRequest,
			expectedTitle:  "bad input",
		},
		"should hide internal error details behind correlation id": {
			path:           "/fail",
			handlerErr:     errors.New("db exploded"),
			expectedStatus: http.StatusInternalServerError,
			expectedTitle:  "An unexpected error occurred.",
			expectCorrID:   true,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			e := echo.New()
			e.HTTPErrorHandler = ErrorHandler
			e.Use(correlation.Middleware(zerolog.Nop()))
			e.GET("/fail", func(c echo.Context) error { return tc.handlerErr })

			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			req.Header.Set(correlation.HeaderName, "corr-1")
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tc.expectedStatus, rec.Code)

			var body Problem
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.expectedTitle, body.Title)
			assert.Equal(t, tc.expectedStatus, body.Status)
			assert.NotContains(t, rec.Body.String(), "db exploded")
			if tc.expectCorrID {
				assert.Equal(t, "corr-1", body.CorrelationID)
			}
		})
	}
}

func TestWriteValidationProblem(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

	require.NoError(t, WriteValidationProblem(c, map[string][]string{"qty": {"Qty must be > 0"}}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t,
		`{"title":"One or more validation errors occurred.","status":400,"errors":{"qty":["Qty must be > 0"]}}`,
		rec.Body.String(),
	)
}
