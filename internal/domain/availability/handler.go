package availability

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
	g := api.Group("/appointments", auth.RequireRole(auth.RoleRequester))
	g.GET("/availability", h.Slots)
}

func (h *Handler) Slots(c echo.Context) error {
	from, err := time.Parse(time.RFC3339, c.QueryParam("from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid from instant")
	}
	to, err := time.Parse(time.RFC3339, c.QueryParam("to"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid to instant")
	}

	slots, err := h.svc.Slots(c.Request().Context(), from, to)
	if err != nil {
		return apperr.HTTP(err)
	}

	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Format(time.RFC3339))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"slots": out})
}
