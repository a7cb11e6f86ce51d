package main

import (
	"github.com/gin-gonic/gin"

	"callcenter-platform/internal/calls"
	"callcenter-platform/internal/campaigns"
	"callcenter-platform/internal/numbers"
	"callcenter-platform/internal/rbac"
	"callcenter-platform/internal/realtime"
	"callcenter-platform/internal/reconcile"
	"callcenter-platform/internal/supervisor"
	"callcenter-platform/internal/users"
	"callcenter-platform/internal/webhooklog"
)

type routeDeps struct {
	authMW gin.HandlerFunc
	hub    *realtime.Hub

	webhook    reconcile.WebhookHandler
	calls      calls.Handlers
	users      users.Handlers
	supervisor supervisor.Handlers
	campaigns  campaigns.Handlers
	numbers    numbers.Handlers
	webhooklog webhooklog.Handlers
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider webhooks (public).
	// NOTE: protect with Telnyx signature validation before exposing to the internet.
	r.POST("/webhooks/telnyx", d.webhook.Handle)

	// Dashboard realtime feed.
	r.GET("/ws", d.hub.ServeWS)

	// Credential exchange (public).
	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/register", d.users.Register)
		authGroup.POST("/login", d.users.Login)
		authGroup.POST("/refresh", d.users.Refresh)
	}

	// protected API group
	api := r.Group("/api")
	api.Use(d.authMW)
	{
		callsGroup := api.Group("/calls")
		callsGroup.Use(rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleSupervisor))
		{
			callsGroup.POST("/dial", d.calls.Dial)
			callsGroup.GET("/active", d.calls.ListActive)
			callsGroup.GET("/history", d.calls.History)
			callsGroup.GET("/:id", d.calls.Get)
			callsGroup.POST("/:id/hangup", d.calls.Hangup)
			callsGroup.POST("/:id/bridge", d.calls.Bridge)
			callsGroup.POST("/:id/record", d.calls.Record)
			callsGroup.POST("/:id/ai", d.calls.StartAI)
			callsGroup.POST("/:id/stream", d.calls.Stream)
		}

		supervisorGroup := api.Group("/supervisor")
		supervisorGroup.Use(rbac.RequireAnyRole(rbac.RoleSupervisor))
		{
			supervisorGroup.POST("/:id/monitor", d.supervisor.Monitor)
			supervisorGroup.POST("/:id/whisper", d.supervisor.Whisper)
			supervisorGroup.POST("/:id/barge", d.supervisor.Barge)
			supervisorGroup.POST("/switch", d.supervisor.Switch)
		}

		campaignsGroup := api.Group("/campaigns")
		campaignsGroup.Use(rbac.RequireAnyRole(rbac.RoleSupervisor))
		{
			campaignsGroup.POST("", d.campaigns.Create)
			campaignsGroup.GET("", d.campaigns.List)
			campaignsGroup.GET("/:id", d.campaigns.Get)
			campaignsGroup.POST("/:id/start", d.campaigns.Start)
			campaignsGroup.POST("/:id/stop", d.campaigns.Stop)
		}

		numbersGroup := api.Group("/numbers")
		numbersGroup.Use(rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleSupervisor))
		{
			numbersGroup.GET("", d.numbers.List)
		}
		numbersAdmin := api.Group("/numbers")
		numbersAdmin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			numbersAdmin.POST("", d.numbers.Create)
			numbersAdmin.PATCH("/:id", d.numbers.Patch)
			numbersAdmin.DELETE("/:id", d.numbers.Delete)
		}

		// Webhook inspection (operator debugging).
		webhooksGroup := api.Group("/webhooks")
		webhooksGroup.Use(rbac.RequireAnyRole(rbac.RoleSupervisor))
		{
			webhooksGroup.GET("", d.webhooklog.List)
			webhooksGroup.GET("/:id", d.webhooklog.Get)
			webhooksGroup.DELETE("/:id", d.webhooklog.Delete)
			webhooksGroup.DELETE("", d.webhooklog.Clear)
		}
	}
}
