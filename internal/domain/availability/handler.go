package availability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicsuite/agenda/internal/platform/auth"
)

type Handler struct {
	finder *Finder
}

func NewHandler(finder *Finder) *Handler {
	return &Handler{finder: finder}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleReceptionist, auth.RoleProfessional))
	read.GET("/waiting-list/available-slots", h.Search)
}

// SlotsResponse lists every slot and, separately, the preferred and
// alternative groups.
type SlotsResponse struct {
	Data         []AvailableSlot `json:"data"`
	Preferred    []AvailableSlot `json:"preferred"`
	Alternatives []AvailableSlot `json:"alternatives"`
	Total        int             `json:"total"`
}

func NewSlotsResponse(slots []AvailableSlot) SlotsResponse {
	preferred, alternatives := Classify(slots)
	return SlotsResponse{Data: slots, Preferred: preferred, Alternatives: alternatives, Total: len(slots)}
}

// HTTPError maps finder errors to responses.
func HTTPError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}

// ParamsFromQuery reads search parameters from the query string. Dates are
// interpreted in loc.
func ParamsFromQuery(c echo.Context, loc *time.Location) (SearchParams, error) {
	var p SearchParams
	if v := c.QueryParam("professional_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return p, echo.NewHTTPError(http.StatusBadRequest, "invalid professional_id")
		}
		p.ProfessionalID = &id
	}
	if v := c.QueryParam("preferred_date"); v != "" {
		d, err := time.ParseInLocation("2006-01-02", v, loc)
		if err != nil {
			return p, echo.NewHTTPError(http.StatusBadRequest, "invalid preferred_date: expected YYYY-MM-DD")
		}
		p.PreferredDate = &d
	}
	if v := c.QueryParam("preferred_time_start"); v != "" {
		p.PreferredTimeStart = &v
	}
	if v := c.QueryParam("preferred_time_end"); v != "" {
		p.PreferredTimeEnd = &v
	}
	if v := c.QueryParam("duration_minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, echo.NewHTTPError(http.StatusBadRequest, "invalid duration_minutes")
		}
		p.DurationMinutes = n
	}
	if v := c.QueryParam("days_ahead"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, echo.NewHTTPError(http.StatusBadRequest, "invalid days_ahead")
		}
		p.DaysAhead = n
	}
	return p, nil
}

func (h *Handler) Search(c echo.Context) error {
	p, err := ParamsFromQuery(c, h.finder.Location())
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	slots, err := h.finder.SearchSlots(ctx, p)
	if err != nil {
		if !errors.Is(err, ErrValidation) && !errors.Is(err, ErrNotFound) {
			zerolog.Ctx(ctx).Error().Err(err).Msg("slot search failed")
		}
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, NewSlotsResponse(slots))
}
