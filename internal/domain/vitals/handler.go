package vitals

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/carenet/clinic/internal/platform/apperr"
	"github.com/carenet/clinic/internal/platform/auth"
	"github.com/carenet/clinic/pkg/pagination"
)

const maxListLimit = 200

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/vitals", auth.RequireRole(auth.RoleStaff, auth.RolePatient))
	g.POST("", h.RecordReading)
	g.GET("", h.ListReadings)
	g.GET("/trend", h.Trend)
}

type recordRequest struct {
	PatientID int64 `json:"patient_id"`
	Input
}

func (h *Handler) RecordReading(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	var req recordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	patientID, err := actor.SubjectFor(req.PatientID)
	if err != nil {
		return apperr.HTTP(err)
	}

	reading, err := h.svc.RecordReading(c.Request().Context(), actor, patientID, req.Input)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, reading)
}

// ListReadings returns readings most recent first.
func (h *Handler) ListReadings(c echo.Context) error {
	patientID, err := subjectFromQuery(c)
	if err != nil {
		return err
	}
	pg := pagination.Parse(c, h.svc.ChartWindow(), maxListLimit)
	items, err := h.svc.RecentReadings(c.Request().Context(), patientID, pg.Limit)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

// Trend returns the chronological chart series.
func (h *Handler) Trend(c echo.Context) error {
	patientID, err := subjectFromQuery(c)
	if err != nil {
		return err
	}
	pg := pagination.Parse(c, h.svc.ChartWindow(), maxListLimit)
	series, err := h.svc.TrendSeries(c.Request().Context(), patientID, pg.Limit)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, series)
}

func subjectFromQuery(c echo.Context) (int64, error) {
	actor, err := auth.MustActor(c)
	if err != nil {
		return 0, err
	}
	var requested int64
	if raw := c.QueryParam("patient_id"); raw != "" {
		requested, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, apperr.HTTP(apperr.Validation("invalid patient_id"))
		}
	}
	id, err := actor.SubjectFor(requested)
	if err != nil {
		return 0, apperr.HTTP(err)
	}
	return id, nil
}
