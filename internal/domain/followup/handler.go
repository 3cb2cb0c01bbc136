package followup

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/carenet/clinic/internal/platform/apperr"
	"github.com/carenet/clinic/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/followups")
	g.POST("", h.CreateFollowUp, auth.RequireStaff())
	g.GET("", h.ListFollowUps, auth.RequireRole(auth.RoleStaff, auth.RolePatient))
}

type createRequest struct {
	PatientID int64 `json:"patient_id"`
	Input
}

func (h *Handler) CreateFollowUp(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	patientID, err := actor.SubjectFor(req.PatientID)
	if err != nil {
		return apperr.HTTP(err)
	}
	f, err := h.svc.CreateFollowUp(c.Request().Context(), actor, patientID, req.Input)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, f)
}

func (h *Handler) ListFollowUps(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	var requested int64
	if raw := c.QueryParam("patient_id"); raw != "" {
		if requested, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return apperr.HTTP(apperr.Validation("invalid patient_id"))
		}
	}
	patientID, err := actor.SubjectFor(requested)
	if err != nil {
		return apperr.HTTP(err)
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			return apperr.HTTP(apperr.Validation("invalid limit"))
		}
	}
	items, err := h.svc.ListByPatient(c.Request().Context(), patientID, limit)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}
