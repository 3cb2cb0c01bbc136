package patient

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/carenet/clinic/internal/platform/apperr"
	"github.com/carenet/clinic/internal/platform/auth"
	"github.com/carenet/clinic/pkg/pagination"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("/patients", auth.RequireStaff())
	staff.POST("", h.CreatePatient)
	staff.GET("", h.SearchPatients)
	staff.GET("/export", h.ExportRegister)
	staff.PATCH("/:id", h.UpdatePatient)
	staff.DELETE("/:id", h.DeletePatient)

	api.GET("/patients/:id", h.GetPatient, auth.RequireRole(auth.RoleStaff, auth.RolePatient))
	api.GET("/me", h.GetMe, auth.RequireRole(auth.RolePatient))
}

func (h *Handler) CreatePatient(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	var req NewPatient
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	out, err := h.svc.CreatePatient(c.Request().Context(), actor, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) GetPatient(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	v, err := h.svc.GetPatient(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, v)
}

// GetMe returns the calling patient's own record.
func (h *Handler) GetMe(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	v, err := h.svc.GetPatient(c.Request().Context(), actor, actor.ID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req Update
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	out, err := h.svc.UpdatePatient(c.Request().Context(), actor, id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), actor, id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SearchPatients(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchPatients(c.Request().Context(), actor, c.QueryParam("search"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ExportRegister(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := h.svc.ExportRegister(c.Request().Context(), actor, c.QueryParam("search"), &buf); err != nil {
		return apperr.HTTP(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+registerFilename+`"`)
	return c.Blob(http.StatusOK, xlsxMIME, buf.Bytes())
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.HTTP(apperr.Validation("invalid patient id"))
	}
	return id, nil
}

// bindError keeps validation failures raised while decoding (bad dates)
// in the error envelope.
func bindError(err error) error {
	if he, ok := err.(*echo.HTTPError); ok && he.Internal != nil {
		err = he.Internal
	}
	if errors.Is(err, apperr.ErrValidation) {
		return apperr.HTTP(err)
	}
	return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
}
