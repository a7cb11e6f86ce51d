package numbers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"callcenter-platform/internal/realtime"
	"callcenter-platform/pkg/logger"
)

// Handlers exposes number CRUD. Every successful mutation pushes the full
// refreshed list over the hub so dashboards stay current without polling.
type Handlers struct {
	Store Store
	Hub   realtime.Broadcaster
}

// List handles GET /api/numbers.
func (h Handlers) List(c *gin.Context) {
	list, err := h.Store.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"numbers": list})
}

// Create handles POST /api/numbers.
func (h Handlers) Create(c *gin.Context) {
	var body struct {
		Number string `json:"number"`
		Label  string `json:"label"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !IsE164(body.Number) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "number must be E.164"})
		return
	}

	created, err := h.Store.Create(c.Request.Context(), PhoneNumber{
		Number: body.Number,
		Label:  body.Label,
		Active: true,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	h.broadcast(c)
	c.JSON(http.StatusCreated, gin.H{"number": created})
}

// Patch handles PATCH /api/numbers/:id.
func (h Handlers) Patch(c *gin.Context) {
	var body struct {
		Label  *string `json:"label"`
		Active *bool   `json:"active"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	updated, err := h.Store.Update(c.Request.Context(), c.Param("id"), Update{
		Label:  body.Label,
		Active: body.Active,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	h.broadcast(c)
	c.JSON(http.StatusOK, gin.H{"number": updated})
}

// Delete handles DELETE /api/numbers/:id.
func (h Handlers) Delete(c *gin.Context) {
	if err := h.Store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	h.broadcast(c)
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h Handlers) broadcast(c *gin.Context) {
	if h.Hub == nil {
		return
	}
	list, err := h.Store.List(c.Request.Context())
	if err != nil {
		logger.FromGin(c).Warn("numbers broadcast list failed", "err", err)
		return
	}
	h.Hub.Publish(realtime.EventNumbersUpdate, gin.H{"numbers": list})
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "number not found"})
	case errors.Is(err, ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "number already provisioned"})
	default:
		logger.FromGin(c).Error("numbers request failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
