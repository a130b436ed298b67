package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ai-testgen/backend/internal/job"
	"github.com/ai-testgen/backend/internal/service"
)

// GenerateTestsRequest is the body for POST .../tests/generate
type GenerateTestsRequest struct {
	EndpointIDs []string `json:"endpoint_ids" binding:"required,min=1"`
}

// TriggerScan handles POST /api/v1/projects/:project_id/scan
// Queues a codebase scan for the project
func (h *JobHandler) TriggerScan(c *gin.Context) {
	projectID, ok := h.authorizedProject(c)
	if !ok {
		return
	}

	project, err := h.projects.GetProject(c.Request.Context(), projectID)
	if err != nil {
		h.logger.Error("Failed to load project", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load project"})
		return
	}

	jobID, err := h.queue.Enqueue(c.Request.Context(), job.TypeScan, projectID, job.ScanArgs{GitURL: project.GitURL})
	if err != nil {
		h.logger.Error("Failed to enqueue scan", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue scan"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":  jobID,
		"status":  job.StatusQueued,
		"message": "Scan initiated successfully.",
	})
}

// TriggerGeneration handles POST /api/v1/projects/:project_id/tests/generate
// Queues a batch test generation job for the given endpoints
func (h *JobHandler) TriggerGeneration(c *gin.Context) {
	projectID, ok := h.authorizedProject(c)
	if !ok {
		return
	}

	var req GenerateTestsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint_ids is required"})
		return
	}

	jobID, err := h.queue.Enqueue(c.Request.Context(), job.TypeGenerateBatch, projectID, job.GenerateArgs{EndpointIDs: req.EndpointIDs})
	if err != nil {
		h.logger.Error("Failed to enqueue generation", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue generation"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":    jobID,
		"status":    job.StatusQueued,
		"endpoints": len(req.EndpointIDs),
	})
}

// TriggerHealing handles POST /api/v1/projects/:project_id/tests/:test_id/heal
// Queues a self-healing job for one test case
func (h *JobHandler) TriggerHealing(c *gin.Context) {
	projectID, ok := h.authorizedProject(c)
	if !ok {
		return
	}

	testID := c.Param("test_id")
	if _, err := uuid.Parse(testID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "test_id must be a valid UUID"})
		return
	}

	jobID, err := h.queue.Enqueue(c.Request.Context(), job.TypeHeal, projectID, job.HealArgs{TestCaseID: testID})
	if err != nil {
		h.logger.Error("Failed to enqueue healing", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue healing"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":  jobID,
		"status":  job.StatusQueued,
		"test_id": testID,
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
// Reports the status of a background job
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id must be a valid UUID"})
		return
	}

	report, err := h.queue.Status(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		h.logger.Error("Failed to get job status", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get job status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":        report.JobID,
		"status":        report.Status,
		"result":        report.Result,
		"error_message": report.ErrorMessage,
	})
}

// authorizedProject validates the project_id parameter and checks that
// the authenticated user owns the project. It writes the error
// response itself when the check fails.
func (h *JobHandler) authorizedProject(c *gin.Context) (string, bool) {
	projectID := c.Param("project_id")
	if _, err := uuid.Parse(projectID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "project_id must be a valid UUID"})
		return "", false
	}

	userID := c.GetString("user_id")
	owns, err := h.projects.Owns(c.Request.Context(), projectID, userID)
	if err != nil && !errors.Is(err, service.ErrProjectNotFound) {
		h.logger.Error("Failed to check project ownership", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check project ownership"})
		return "", false
	}
	if !owns {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return "", false
	}
	return projectID, true
}
