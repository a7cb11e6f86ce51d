package campaigns

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"callcenter-platform/pkg/logger"
)

// Handlers exposes the campaign API. Route-level RBAC restricts mutations to
// SUPERVISOR and ADMIN.
type Handlers struct {
	Service *Service
}

// Create handles POST /api/campaigns.
func (h Handlers) Create(c *gin.Context) {
	var p CreateParams
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	campaign, err := h.Service.Create(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"campaign": campaign})
}

// List handles GET /api/campaigns.
func (h Handlers) List(c *gin.Context) {
	list, err := h.Service.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": list})
}

// Get handles GET /api/campaigns/:id.
func (h Handlers) Get(c *gin.Context) {
	campaign, targets, err := h.Service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign": campaign, "targets": targets})
}

// Start handles POST /api/campaigns/:id/start.
func (h Handlers) Start(c *gin.Context) {
	campaign, err := h.Service.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign": campaign})
}

// Stop handles POST /api/campaigns/:id/stop.
func (h Handlers) Stop(c *gin.Context) {
	campaign, err := h.Service.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign": campaign})
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
	case errors.Is(err, ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.FromGin(c).Error("campaign request failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
