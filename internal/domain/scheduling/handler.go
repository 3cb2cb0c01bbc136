package scheduling

import (
	"net/http"
	"strconv"
	"time"

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
	g := api.Group("/appointments", auth.RequireRole(auth.RoleStaff, auth.RolePatient))
	g.POST("", h.CreateAppointment)
	g.GET("", h.ListAppointments)
	g.GET("/:id", h.GetAppointment)
	g.PATCH("/:id", h.UpdateAppointment)
	g.POST("/:id/reopen", h.ReopenAppointment, auth.RequireStaff())
}

type createRequest struct {
	PatientID     int64     `json:"patient_id"`
	When          time.Time `json:"date_heure"`
	Reason        string    `json:"motif"`
	Status        string    `json:"statut"`
	InternalNotes *string   `json:"notes_internes"`
}

type patchRequest struct {
	Status        *string    `json:"statut"`
	When          *time.Time `json:"date_heure"`
	Reason        *string    `json:"motif"`
	InternalNotes *string    `json:"notes_internes"`
}

type reopenRequest struct {
	When *time.Time `json:"date_heure"`
}

func present(actor auth.Actor, a *Appointment) *Appointment {
	if actor.IsStaff() {
		return a
	}
	return a.ForPatient()
}

func (h *Handler) CreateAppointment(c echo.Context) error {
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
	var status Status
	if req.Status != "" {
		if status, err = ParseStatus(req.Status); err != nil {
			return apperr.HTTP(err)
		}
	}

	a, err := h.svc.CreateAppointment(c.Request().Context(), actor, CreateRequest{
		PatientID:     patientID,
		When:          req.When,
		Reason:        req.Reason,
		Status:        status,
		InternalNotes: req.InternalNotes,
	})
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, present(actor, a))
}

// ListAppointments lists one patient's appointments (most recent first) or,
// for staff with ?date=YYYY-MM-DD, one clinic day in ascending order.
func (h *Handler) ListAppointments(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	if raw := c.QueryParam("date"); raw != "" {
		if !actor.IsStaff() {
			return apperr.HTTP(apperr.Forbidden("day listings are staff only"))
		}
		day, err := time.ParseInLocation("2006-01-02", raw, h.svc.Location())
		if err != nil {
			return apperr.HTTP(apperr.Validation("date must be YYYY-MM-DD"))
		}
		items, err := h.svc.ListByDate(ctx, day)
		if err != nil {
			return apperr.HTTP(err)
		}
		return c.JSON(http.StatusOK, items)
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
	items, err := h.svc.ListByPatient(ctx, patientID)
	if err != nil {
		return apperr.HTTP(err)
	}
	out := make([]*Appointment, len(items))
	for i, a := range items {
		out[i] = present(actor, a)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, present(actor, a))
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req patchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p := Patch{When: req.When, Reason: req.Reason, InternalNotes: req.InternalNotes}
	if req.Status != nil {
		status, err := ParseStatus(*req.Status)
		if err != nil {
			return apperr.HTTP(err)
		}
		p.Status = &status
	}

	a, err := h.svc.UpdateAppointment(c.Request().Context(), actor, id, p)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, present(actor, a))
}

func (h *Handler) ReopenAppointment(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req reopenRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	a, err := h.svc.Reopen(c.Request().Context(), actor, id, req.When)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.HTTP(apperr.Validation("invalid appointment id"))
	}
	return id, nil
}
