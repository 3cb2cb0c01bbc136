package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/carenet/clinic/internal/platform/apperr"
)

// RequestTimeout puts a deadline on the request context. Storage calls made
// by the handler observe it; when the handler fails after the deadline has
// passed the request is answered with 504.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return echo.NewHTTPError(http.StatusGatewayTimeout, apperr.Body{
					Error:   "timeout",
					Message: "request processing exceeded the allowed time limit",
				}).SetInternal(err)
			}
			return err
		}
	}
}
