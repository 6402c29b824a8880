package agenda

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/api/internal/apperr"
	"github.com/clinicore/api/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/agenda", auth.RequireRole(auth.RoleStaff))
	g.GET("", h.Window)
	g.GET("/", h.Window)
}

func (h *Handler) Window(c echo.Context) error {
	from, err := time.Parse(time.RFC3339, c.QueryParam("from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid from instant")
	}
	to, err := time.Parse(time.RFC3339, c.QueryParam("to"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid to instant")
	}

	entries, err := h.svc.Window(c.Request().Context(), from, to)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, entries)
}
