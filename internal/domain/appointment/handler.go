package appointment

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicsuite/agenda/internal/platform/auth"
	"github.com/clinicsuite/agenda/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleReceptionist, auth.RoleProfessional))
	read.GET("/appointments", h.List)
	read.GET("/appointments/:id", h.Get)
	read.PUT("/appointments/:id/status", h.UpdateStatus)

	write := api.Group("", auth.RequireRole(auth.RoleReceptionist))
	write.POST("/appointments", h.Create)
}

// httpError maps domain errors to responses without leaking SQL details.
func httpError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	case errors.Is(err, ErrSlotConflict):
		return echo.NewHTTPError(http.StatusConflict, ErrSlotConflict.Error())
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("appointment request failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) Create(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Schedule(c.Request().Context(), req)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f ListFilter

	if v := c.QueryParam("professional_id"); v != "" {
		pid, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid professional_id")
		}
		f.ProfessionalID = &pid
	}
	if v := c.QueryParam("patient_id"); v != "" {
		pid, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &pid
	}
	if v := c.QueryParam("date"); v != "" {
		day, err := time.ParseInLocation("2006-01-02", v, h.svc.Location())
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date: expected YYYY-MM-DD")
		}
		next := day.AddDate(0, 0, 1)
		f.From, f.To = &day, &next
	}
	f.Status = c.QueryParam("status")

	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(c, err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.UpdateStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}
