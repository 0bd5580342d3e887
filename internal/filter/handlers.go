package filter

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/grabgate/grabgate/internal/manifest"
	"github.com/grabgate/grabgate/internal/policy"
)

// Handlers provides HTTP handlers for webhook ingestion and policy
// dry-runs.
type Handlers struct {
	service *Service
	policy  *policy.Policy
}

// NewHandlers creates new filter handlers.
func NewHandlers(service *Service, pol *policy.Policy) *Handlers {
	return &Handlers{service: service, policy: pol}
}

// RegisterRoutes registers filter routes.
func (h *Handlers) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhook", h.HandleWebhook)
	e.POST("/check", h.CheckTorrent)
}

// HandleWebhook accepts an orchestrator notification. Processing happens
// on a background worker; the response only acknowledges receipt.
// POST /webhook
func (h *Handlers) HandleWebhook(c echo.Context) error {
	var payload WebhookPayload
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"status":  "error",
			"message": "invalid payload",
		})
	}

	if payload.EventType == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"status":  "error",
			"message": "missing eventType",
		})
	}

	status := h.service.Accept(payload)
	return c.JSON(http.StatusOK, map[string]string{"status": status})
}

// CheckTorrent dry-runs the extension policy against an uploaded .torrent
// file without touching the orchestrator or the download client.
// POST /check
func (h *Handlers) CheckTorrent(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil || len(body) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"status":  "error",
			"message": "missing torrent body",
		})
	}

	files, err := manifest.ParseTorrent(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"status":  "error",
			"message": err.Error(),
		})
	}

	verdict := h.policy.Classify(files)
	return c.JSON(http.StatusOK, map[string]any{
		"files":             files,
		"blocked":           verdict.Blocked,
		"matchedExtensions": verdict.MatchedExtensions,
		"matchedFiles":      verdict.MatchedFiles,
	})
}
