package supervisor

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"callcenter-platform/internal/calls"
	"callcenter-platform/internal/telnyx"
	"callcenter-platform/pkg/logger"
)

// Handlers exposes the supervisor API. Route-level RBAC restricts these to
// SUPERVISOR and ADMIN.
type Handlers struct {
	Service *Service
}

type joinBody struct {
	CallControlID string `json:"callControlId"`
}

// Monitor handles POST /api/supervisor/:id/monitor.
func (h Handlers) Monitor(c *gin.Context) { h.join(c, ModeMonitor) }

// Whisper handles POST /api/supervisor/:id/whisper.
func (h Handlers) Whisper(c *gin.Context) { h.join(c, ModeWhisper) }

// Barge handles POST /api/supervisor/:id/barge.
func (h Handlers) Barge(c *gin.Context) { h.join(c, ModeBarge) }

func (h Handlers) join(c *gin.Context, mode string) {
	var body joinBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	call, err := h.Service.Join(c.Request.Context(), JoinParams{
		CallID:        c.Param("id"),
		SupervisorLeg: body.CallControlID,
		Mode:          mode,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": mode, "call": call})
}

// Switch handles POST /api/supervisor/switch.
func (h Handlers) Switch(c *gin.Context) {
	var body struct {
		CallControlID string `json:"callControlId"`
		Mode          string `json:"mode"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.Service.Switch(c.Request.Context(), body.CallControlID, body.Mode); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": body.Mode})
}

func respondError(c *gin.Context, err error) {
	var apiErr *telnyx.APIError
	switch {
	case errors.Is(err, calls.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "call not found"})
	case errors.Is(err, ErrNoConference):
		c.JSON(http.StatusConflict, gin.H{"error": "call has no conference to join"})
	case errors.Is(err, ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &apiErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "provider rejected the request", "provider": apiErr.Body})
	default:
		logger.FromGin(c).Error("supervisor request failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
