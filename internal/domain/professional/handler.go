package professional

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

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
	read.GET("/professionals", h.List)
	read.GET("/professionals/:id", h.Get)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin))
	write.POST("/professionals", h.Create)
}

type createRequest struct {
	Name   string `json:"name"`
	Active *bool  `json:"active"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p := &Professional{Name: req.Name, Active: true}
	if req.Active != nil {
		p.Active = *req.Active
	}
	if err := h.svc.Create(c.Request().Context(), p); err != nil {
		if errors.Is(err, ErrValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create professional")
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "professional not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load professional")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	activeOnly := c.QueryParam("active") != "false"
	items, total, err := h.svc.List(c.Request().Context(), activeOnly, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list professionals")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
