package waitlist

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicsuite/agenda/internal/domain/appointment"
	"github.com/clinicsuite/agenda/internal/domain/availability"
	"github.com/clinicsuite/agenda/internal/platform/auth"
	"github.com/clinicsuite/agenda/pkg/pagination"
)

// SlotSearcher is satisfied by *availability.Finder.
type SlotSearcher interface {
	SearchSlots(ctx context.Context, p availability.SearchParams) ([]availability.AvailableSlot, error)
	Location() *time.Location
}

type Handler struct {
	svc   *Service
	slots SlotSearcher
}

func NewHandler(svc *Service, slots SlotSearcher) *Handler {
	return &Handler{svc: svc, slots: slots}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/waiting-list", auth.RequireRole(auth.RoleReceptionist, auth.RoleProfessional))
	read.GET("", h.List)
	read.GET("/:id", h.Get)
	read.GET("/:id/available-slots", h.EntrySlots)

	write := api.Group("/waiting-list", auth.RequireRole(auth.RoleReceptionist))
	write.POST("", h.Create)
	write.PUT("/:id", h.Update)
	write.POST("/:id/contact", h.Contact)
	write.POST("/:id/cancel", h.Cancel)
	write.PUT("/:id/priority", h.UpdatePriority)
	write.POST("/:id/priority/increment", h.IncrementPriority)
	write.POST("/:id/priority/decrement", h.DecrementPriority)
	write.POST("/bulk-priority", h.BulkPriority)
	write.POST("/:id/schedule", h.Schedule)

	superAdmin := api.Group("/waiting-list", auth.RequireRole(auth.RoleSuperAdmin))
	superAdmin.DELETE("/:id", h.Delete)
}

// httpError maps waiting list and appointment errors to responses without
// leaking SQL details.
func httpError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, appointment.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, appointment.ErrSlotConflict):
		return echo.NewHTTPError(http.StatusConflict, appointment.ErrSlotConflict.Error())
	default:
		zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("waiting list request failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Create(c echo.Context) error {
	var e Entry
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Create(c.Request().Context(), &e); err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	e, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{Status: c.QueryParam("status")}

	if v := c.QueryParam("priority"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid priority")
		}
		f.Priority = &p
	}
	if v := c.QueryParam("professional_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid professional_id")
		}
		f.ProfessionalID = &id
	}
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}

	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(c, err)
	}
	if items == nil {
		items = []*Entry{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e, err := h.svc.Update(c.Request().Context(), id, req)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type contactRequest struct {
	Method string `json:"method"`
}

func (h *Handler) Contact(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req contactRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e, err := h.svc.Contact(c.Request().Context(), id, req.Method)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	e, err := h.svc.Cancel(c.Request().Context(), id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

type priorityRequest struct {
	Priority int `json:"priority"`
}

func (h *Handler) UpdatePriority(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req priorityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e, err := h.svc.UpdatePriority(c.Request().Context(), id, req.Priority)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) IncrementPriority(c echo.Context) error { return h.adjustPriority(c, 1) }

func (h *Handler) DecrementPriority(c echo.Context) error { return h.adjustPriority(c, -1) }

func (h *Handler) adjustPriority(c echo.Context, delta int) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	e, err := h.svc.AdjustPriority(c.Request().Context(), id, delta)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

type bulkPriorityRequest struct {
	IDs      []uuid.UUID `json:"ids"`
	Priority int         `json:"priority"`
}

func (h *Handler) BulkPriority(c echo.Context) error {
	var req bulkPriorityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n, err := h.svc.BulkPriorityChange(c.Request().Context(), req.IDs, req.Priority)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"updated": n, "priority": req.Priority})
}

type scheduleResponse struct {
	Entry       *Entry                   `json:"entry"`
	Appointment *appointment.Appointment `json:"appointment"`
}

func (h *Handler) Schedule(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var data AppointmentData
	if err := c.Bind(&data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e, a, err := h.svc.ScheduleFromWaitingList(c.Request().Context(), id, data)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, scheduleResponse{Entry: e, Appointment: a})
}

// EntrySlots searches slots using the entry's professional and preferences.
// duration_minutes and days_ahead may be given as query parameters.
func (h *Handler) EntrySlots(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	e, err := h.svc.Get(ctx, id)
	if err != nil {
		return httpError(c, err)
	}

	p, err := availability.ParamsFromQuery(c, h.slots.Location())
	if err != nil {
		return err
	}
	p.ProfessionalID = e.ProfessionalID
	p.PreferredTimeStart = e.PreferredTimeStart
	p.PreferredTimeEnd = e.PreferredTimeEnd
	p.PreferredDate = nil
	if e.PreferredDate != nil {
		d, err := time.ParseInLocation("2006-01-02", *e.PreferredDate, h.slots.Location())
		if err == nil {
			p.PreferredDate = &d
		}
	}

	slots, err := h.slots.SearchSlots(ctx, p)
	if err != nil {
		return availability.HTTPError(err)
	}
	return c.JSON(http.StatusOK, availability.NewSlotsResponse(slots))
}
