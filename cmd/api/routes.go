package main

import (
	"database/sql"
	"net/http"
	"time"

	"campaign-dialer/internal/audit"
	"campaign-dialer/internal/campaign"
	"campaign-dialer/internal/httpapi"
	"campaign-dialer/internal/jobs"
	"campaign-dialer/internal/webhook"
	"campaign-dialer/pkg/utils"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	db        *sql.DB
	scheduler *campaign.Scheduler
	jobs      jobs.Store
	audit     *audit.Service
	ingester  *webhook.Ingester
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if deps.db != nil {
			if err := utils.HealthCheck(c.Request.Context(), deps.db, 2*time.Second); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider webhooks (public).
	// NOTE: should be protected by provider signature validation in production.
	{
		h := webhook.Handler{Ingester: deps.ingester}
		r.POST("/webhooks/dialer/events", h.HandleEvent)
	}

	v1 := r.Group("/v1")
	{
		h := httpapi.Handlers{
			Scheduler: deps.scheduler,
			Jobs:      deps.jobs,
			Audit:     deps.audit,
		}

		campaigns := v1.Group("/campaigns")
		{
			campaigns.POST("/schedule", h.ScheduleCampaign)
			campaigns.POST("/:job_id/cancel", h.CancelCampaign)
			campaigns.GET("/:job_id", h.GetCampaign)
		}
	}
}
