package stats

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handlers exposes the statistics service over HTTP.
type Handlers struct {
	service *Service
}

// NewHandlers creates statistics HTTP handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers the statistics endpoints.
func (h *Handlers) RegisterRoutes(e *echo.Echo) {
	e.GET("/stats", h.getStats)
	e.POST("/stats/reset", h.resetStats)
}

func (h *Handlers) getStats(c echo.Context) error {
	snapshot, err := h.service.Snapshot(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read statistics")
	}
	return c.JSON(http.StatusOK, snapshot)
}

func (h *Handlers) resetStats(c echo.Context) error {
	if err := h.service.Reset(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to reset statistics")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "reset"})
}
