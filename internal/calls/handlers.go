package calls

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"callcenter-platform/internal/telnyx"
	"callcenter-platform/pkg/logger"
)

// Handlers exposes the call command and query API.
type Handlers struct {
	Service *Service
}

// Dial handles POST /api/calls/dial.
func (h Handlers) Dial(c *gin.Context) {
	var p DialParams
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	call, err := h.Service.StartOutbound(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"call": call})
}

// Hangup handles POST /api/calls/:id/hangup.
func (h Handlers) Hangup(c *gin.Context) {
	call, err := h.Service.Hangup(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call": call})
}

// Bridge handles POST /api/calls/:id/bridge.
func (h Handlers) Bridge(c *gin.Context) {
	var body struct {
		CallControlID string `json:"callControlId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	call, err := h.Service.Bridge(c.Request.Context(), c.Param("id"), body.CallControlID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call": call})
}

// Record handles POST /api/calls/:id/record.
func (h Handlers) Record(c *gin.Context) {
	if err := h.Service.StartRecording(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recording": true})
}

// StartAI handles POST /api/calls/:id/ai.
func (h Handlers) StartAI(c *gin.Context) {
	var cfg telnyx.AIConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.Service.StartAI(c.Request.Context(), c.Param("id"), cfg); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ai": "started"})
}

// Stream handles POST /api/calls/:id/stream.
func (h Handlers) Stream(c *gin.Context) {
	var body struct {
		StreamURL string `json:"streamUrl"`
	}
	// Body is optional; an empty body means "use the configured destination".
	_ = c.ShouldBindJSON(&body)

	if err := h.Service.StartStreaming(c.Request.Context(), c.Param("id"), body.StreamURL); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"streaming": "started"})
}

// Get handles GET /api/calls/:id.
func (h Handlers) Get(c *gin.Context) {
	call, err := h.Service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call": call})
}

// ListActive handles GET /api/calls/active.
func (h Handlers) ListActive(c *gin.Context) {
	active, err := h.Service.ListActive(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": active})
}

// History handles GET /api/calls/history.
func (h Handlers) History(c *gin.Context) {
	f := HistoryFilter{CustomerNumber: c.Query("customerNumber")}
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		f.Limit = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		f.Offset = v
	}

	history, err := h.Service.History(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": history})
}

// respondError maps service errors onto HTTP statuses. Provider rejections
// come back as 502 with the provider body so the dashboard can show the real
// reason.
func respondError(c *gin.Context, err error) {
	var apiErr *telnyx.APIError
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "call not found"})
	case errors.Is(err, ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &apiErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "provider rejected the request", "provider": apiErr.Body})
	default:
		logger.FromGin(c).Error("call request failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
