package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) schedulerEnabled(c *gin.Context) bool {
	if h.scheduler == nil {
		abort(c, http.StatusServiceUnavailable, "scheduler_error", "Scheduler is not configured")
		return false
	}
	return true
}

// StartScheduler starts the scheduled campaign dispatcher
func (h *Handlers) StartScheduler(c *gin.Context) {
	if !h.schedulerEnabled(c) {
		return
	}
	if err := h.scheduler.Start(); err != nil {
		abort(c, http.StatusConflict, "scheduler_error", fmt.Sprintf("Failed to start scheduler: %v", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Scheduler started successfully",
		"status":  "running",
	})
}

// StopScheduler stops the scheduled campaign dispatcher
func (h *Handlers) StopScheduler(c *gin.Context) {
	if !h.schedulerEnabled(c) {
		return
	}
	if err := h.scheduler.Stop(); err != nil {
		abort(c, http.StatusInternalServerError, "scheduler_error", "Failed to stop scheduler")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Scheduler stopped successfully",
		"status":  "stopped",
	})
}

// RunOnce sends due campaigns and sweeps bounces immediately
func (h *Handlers) RunOnce(c *gin.Context) {
	if !h.schedulerEnabled(c) {
		return
	}
	report, err := h.scheduler.RunOnce(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetSchedulerStatus returns the current scheduler status
func (h *Handlers) GetSchedulerStatus(c *gin.Context) {
	if !h.schedulerEnabled(c) {
		return
	}
	status := "stopped"
	if h.scheduler.IsRunning() {
		status = "running"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"next_run": h.scheduler.GetNextRun(),
		"last_run": h.scheduler.GetLastRun(),
	})
}
