package webhooklog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"callcenter-platform/pkg/logger"
)

// Handlers expose the operator webhook-inspection API.
// Read/delete only; deliveries are created by the webhook pipeline.
type Handlers struct {
	Store Store
}

func (h Handlers) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	items, total, err := h.Store.List(c.Request.Context(), page, limit)
	if err != nil {
		logger.FromGin(c).Error("webhook list failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch webhook deliveries"})
		return
	}

	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	totalPages := (total + limit - 1) / limit

	c.JSON(http.StatusOK, gin.H{
		"webhookRequests": items,
		"pagination": gin.H{
			"currentPage": page,
			"totalPages":  totalPages,
			"totalCount":  total,
			"hasNext":     page < totalPages,
			"hasPrev":     page > 1,
		},
	})
}

func (h Handlers) Get(c *gin.Context) {
	d, err := h.Store.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "webhook delivery not found"})
			return
		}
		logger.FromGin(c).Error("webhook get failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch webhook delivery"})
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h Handlers) Delete(c *gin.Context) {
	if err := h.Store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "webhook delivery not found"})
			return
		}
		logger.FromGin(c).Error("webhook delete failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to delete webhook delivery"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "webhook delivery deleted"})
}

func (h Handlers) Clear(c *gin.Context) {
	if err := h.Store.Clear(c.Request.Context()); err != nil {
		logger.FromGin(c).Error("webhook clear failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to clear webhook deliveries"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "all webhook deliveries deleted"})
}
