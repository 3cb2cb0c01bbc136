package stats

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
	api.GET("/stats/global", h.Global, auth.RequireStaff())
	api.GET("/patients/:id/dashboard", h.PatientDashboard, auth.RequireStaff())

	me := api.Group("/me", auth.RequireRole(auth.RolePatient))
	me.GET("/dashboard", h.MyDashboard)
	me.GET("/history", h.MyHistory)
}

func (h *Handler) Global(c echo.Context) error {
	out, err := h.svc.GlobalSummary(c.Request().Context())
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) PatientDashboard(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return apperr.HTTP(apperr.Validation("invalid patient id"))
	}
	out, err := h.svc.PatientDashboard(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) MyDashboard(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	out, err := h.svc.PatientDashboard(c.Request().Context(), actor.ID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) MyHistory(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	out, err := h.svc.PatientHistory(c.Request().Context(), actor.ID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}
