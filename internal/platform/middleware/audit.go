package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carenet/clinic/internal/platform/auth"
)

// AuditEntry records who touched which clinical resource.
type AuditEntry struct {
	Actor      string
	Resource   string
	PatientID  int64
	Action     string
	Method     string
	Path       string
	RequestID  string
	StatusCode int
}

// Audit emits one structured "clinical_access" log line for every request
// under /api/v1/ except login.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !isAuditablePath(c.Request().URL.Path) {
				return next(c)
			}

			err := next(c)

			entry := buildAuditEntry(c, err)
			evt := logger.Info()
			if entry.Action == "delete" {
				evt = logger.Warn()
			}
			evt.
				Str("type", "clinical_access").
				Str("request_id", entry.RequestID).
				Str("actor", entry.Actor).
				Str("resource", entry.Resource).
				Int64("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Int("status", entry.StatusCode).
				Msg("clinical_access")

			return err
		}
	}
}

func buildAuditEntry(c echo.Context, err error) AuditEntry {
	req := c.Request()
	entry := AuditEntry{
		Method:     req.Method,
		Path:       req.URL.Path,
		Action:     httpMethodToAction(req.Method),
		Resource:   extractResource(req.URL.Path),
		PatientID:  extractPatientID(c),
		StatusCode: c.Response().Status,
		Actor:      "anonymous",
	}
	if he, ok := err.(*echo.HTTPError); ok {
		entry.StatusCode = he.Code
	}
	if actor, ok := auth.ActorFromContext(req.Context()); ok {
		entry.Actor = actor.String()
	}
	if rid, ok := c.Get("request_id").(string); ok {
		entry.RequestID = rid
	}
	return entry
}

func isAuditablePath(path string) bool {
	return strings.HasPrefix(path, "/api/v1/") && path != "/api/v1/auth/login"
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// extractResource returns the first path segment after /api/v1/.
func extractResource(path string) string {
	seg, _, _ := strings.Cut(strings.TrimPrefix(path, "/api/v1/"), "/")
	if seg == "" {
		return "unknown"
	}
	return seg
}

// extractPatientID finds the subject patient in /api/v1/patients/<id> or a
// patient_id query parameter. Zero means unknown.
func extractPatientID(c echo.Context) int64 {
	path := c.Request().URL.Path
	if rest, ok := strings.CutPrefix(path, "/api/v1/patients/"); ok {
		seg, _, _ := strings.Cut(rest, "/")
		if id, err := strconv.ParseInt(seg, 10, 64); err == nil {
			return id
		}
	}
	if id, err := strconv.ParseInt(c.QueryParam("patient_id"), 10, 64); err == nil {
		return id
	}
	return 0
}
