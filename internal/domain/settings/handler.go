package settings

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicsuite/agenda/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleReceptionist, auth.RoleProfessional))
	read.GET("/tenant/settings", h.Get)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin))
	write.PUT("/tenant/settings", h.Update)
}

func (h *Handler) Get(c echo.Context) error {
	st, err := h.svc.Get(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load settings")
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) Update(c echo.Context) error {
	var st Settings
	if err := c.Bind(&st); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed settings payload")
	}
	if err := h.svc.Update(c.Request().Context(), &st); err != nil {
		if errors.Is(err, ErrValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save settings")
	}
	return c.JSON(http.StatusOK, st)
}
