package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// InitSentry configures the global Sentry client. An empty dsn leaves error
// reporting disabled; the returned flush func is always safe to call.
func InitSentry(dsn, environment, release string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	}); err != nil {
		return func() {}, err
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

func requestHub(c echo.Context) *sentry.Hub {
	hub := sentry.CurrentHub()
	if hub.Client() == nil {
		return nil
	}
	hub = hub.Clone()
	hub.Scope().SetRequest(c.Request())
	if rid, ok := c.Get("request_id").(string); ok {
		hub.Scope().SetTag("request_id", rid)
	}
	return hub
}

func reportPanic(c echo.Context, r interface{}) {
	if hub := requestHub(c); hub != nil {
		hub.Recover(r)
	}
}

func reportError(c echo.Context, err error) {
	if hub := requestHub(c); hub != nil {
		hub.CaptureException(err)
	}
}

// ErrorHandler is the server's echo.HTTPErrorHandler. Server-side failures
// are logged with their internal cause and sent to Sentry; the response body
// is rendered by echo's default handler.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
		}

		if code >= http.StatusInternalServerError {
			cause := err
			if he != nil && he.Internal != nil {
				cause = he.Internal
			}
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(cause).Str("request_id", rid).Int("status", code).Msg("request failed")
			reportError(c, cause)
		}

		c.Echo().DefaultHTTPErrorHandler(err, c)
	}
}
