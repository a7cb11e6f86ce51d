package reconcile

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"callcenter-platform/internal/realtime"
	"callcenter-platform/internal/telnyx"
	"callcenter-platform/internal/webhooklog"
	"callcenter-platform/pkg/logger"
)

// maxWebhookBody caps how much of a delivery we read. Provider events are
// small; anything larger is not one of ours.
const maxWebhookBody = 1 << 20

// WebhookHandler is the delivery pipeline for provider notifications:
// durably log the raw request, broadcast it for live inspection, decode,
// reconcile, then record the processing outcome on the logged row.
//
// Response contract: 200 {"received": true} on any outcome that is not a
// hard persistence failure. Non-2xx only when the delivery could not be
// durably logged or reconciled, which makes the provider redeliver.
//
// Everything here must finish inside the provider's webhook timeout window;
// no provider-side follow-up calls happen on this path.
type WebhookHandler struct {
	Deliveries webhooklog.Store
	Reconciler *Reconciler
	Hub        realtime.Broadcaster

	Now func() time.Time
}

func (h WebhookHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)
	ctx := logger.With(c.Request.Context(), log)
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	headers, _ := json.Marshal(c.Request.Header)
	delivery, err := h.Deliveries.Append(ctx, webhooklog.Delivery{
		Method:    c.Request.Method,
		URL:       requestURL(c.Request),
		Headers:   string(headers),
		Body:      string(body),
		SourceIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		// Without the audit row there is nothing to replay from; force redelivery.
		log.Error("webhook delivery log failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to log webhook delivery"})
		return
	}

	h.publish(realtime.EventWebhookReceived, gin.H{
		"id":        delivery.ID,
		"method":    delivery.Method,
		"url":       delivery.URL,
		"sourceIp":  delivery.SourceIP,
		"userAgent": delivery.UserAgent,
		"timestamp": delivery.ReceivedAt,
	})

	ev, ok := telnyx.DecodeWebhook(body)
	if !ok {
		// Malformed or empty bodies are expected noise (health checks, probes);
		// mark processed with no action and acknowledge.
		if err := h.Deliveries.MarkProcessed(ctx, delivery.ID, ""); err != nil {
			log.Warn("webhook mark-processed failed", "id", delivery.ID, "err", err)
		}
		h.publish(realtime.EventWebhookProcessed, gin.H{
			"id":        delivery.ID,
			"processed": true,
			"timestamp": now().UTC(),
		})
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if _, err := h.Reconciler.Reconcile(ctx, ev); err != nil {
		log.Error("webhook reconcile failed", "id", delivery.ID, "event_type", ev.Type, "err", err)
		if merr := h.Deliveries.MarkProcessed(ctx, delivery.ID, err.Error()); merr != nil {
			log.Warn("webhook mark-processed failed", "id", delivery.ID, "err", merr)
		}
		h.publish(realtime.EventWebhookError, gin.H{
			"id":        delivery.ID,
			"error":     err.Error(),
			"timestamp": now().UTC(),
		})
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "webhook processing failed"})
		return
	}

	if err := h.Deliveries.MarkProcessed(ctx, delivery.ID, ""); err != nil {
		log.Warn("webhook mark-processed failed", "id", delivery.ID, "err", err)
	}
	h.publish(realtime.EventWebhookProcessed, gin.H{
		"id":        delivery.ID,
		"processed": true,
		"timestamp": now().UTC(),
	})
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h WebhookHandler) publish(event string, payload any) {
	if h.Hub == nil {
		return
	}
	h.Hub.Publish(event, payload)
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.RequestURI
}
