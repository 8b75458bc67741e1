package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"campaign-dialer/internal/audit"
	"campaign-dialer/internal/campaign"
	"campaign-dialer/internal/jobs"
	"campaign-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Scheduler *campaign.Scheduler
	Jobs      jobs.Store

	// Audit is optional; records are best-effort and never fail a request.
	Audit *audit.Service
}

type scheduleRequest struct {
	AgentID     string    `json:"agent_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Limit       int       `json:"limit"`
	FromNumber  string    `json:"from_number"`
	Tag         string    `json:"tag,omitempty"`
}

type scheduleResponse struct {
	JobID          string    `json:"job_id"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	Reserved       int       `json:"reserved"`
	AlreadyRunning bool      `json:"already_running"`
}

// ScheduleCampaign creates and arms a campaign job. An agent that already has
// an active job gets a 200 with already_running=true rather than a conflict
// error; callers poll the returned job instead of retrying.
func (h Handlers) ScheduleCampaign(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Scheduler == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "scheduler not configured"})
		return
	}

	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	res, err := h.Scheduler.Schedule(c.Request.Context(), campaign.ScheduleRequest{
		AgentID:    req.AgentID,
		At:         req.ScheduledAt,
		Limit:      req.Limit,
		FromNumber: req.FromNumber,
		Tag:        req.Tag,
	})
	switch {
	case errors.Is(err, campaign.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, campaign.ErrNoContacts):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "no contacts match the selection"})
		return
	case err != nil:
		log.Error("schedule failed", "agent_id", req.AgentID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "schedule failed"})
		return
	}

	if h.Audit != nil && !res.AlreadyRunning {
		meta := fmt.Sprintf(`{"reserved":%d,"limit":%d,"tag":%q}`, res.Reserved, req.Limit, req.Tag)
		if aerr := h.Audit.LogJobScheduled(c.Request.Context(), req.AgentID, res.JobID, c.ClientIP(), meta); aerr != nil {
			log.Error("audit append failed", "job_id", res.JobID, "err", aerr)
		}
	}

	c.JSON(http.StatusOK, scheduleResponse{
		JobID:          res.JobID,
		ScheduledAt:    res.ScheduledAt,
		Reserved:       res.Reserved,
		AlreadyRunning: res.AlreadyRunning,
	})
}

// CancelCampaign requests cooperative cancellation of a job.
func (h Handlers) CancelCampaign(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Scheduler == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "scheduler not configured"})
		return
	}

	jobID := c.Param("job_id")
	if jobID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "job_id required"})
		return
	}

	err := h.Scheduler.Cancel(c.Request.Context(), jobID)
	switch {
	case errors.Is(err, campaign.ErrJobNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	case err != nil:
		log.Error("cancel failed", "job_id", jobID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "cancel failed"})
		return
	}

	if h.Audit != nil {
		agentID := ""
		if job, jerr := h.Jobs.FindByID(c.Request.Context(), jobID); jerr == nil && job != nil {
			agentID = job.AgentID
		}
		if aerr := h.Audit.LogJobCanceled(c.Request.Context(), agentID, jobID, c.ClientIP()); aerr != nil {
			log.Error("audit append failed", "job_id", jobID, "err", aerr)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "canceled", "job_id": jobID})
}

// GetCampaign returns a job progress snapshot.
func (h Handlers) GetCampaign(c *gin.Context) {
	if h.Jobs == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "job store not configured"})
		return
	}

	jobID := c.Param("job_id")
	if jobID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "job_id required"})
		return
	}

	job, err := h.Jobs.FindByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	c.JSON(http.StatusOK, job)
}
