package handler

import (
	"context"
	"log/slog"

	"github.com/ai-testgen/backend/internal/job"
	"github.com/ai-testgen/backend/internal/service"
)

// JobQueue submits background jobs and reports their status
type JobQueue interface {
	Enqueue(ctx context.Context, jobType, projectID string, args any) (string, error)
	Status(ctx context.Context, jobID string) (*job.StatusReport, error)
}

// ProjectReader resolves projects and ownership for request checks
type ProjectReader interface {
	GetProject(ctx context.Context, projectID string) (*service.Project, error)
	Owns(ctx context.Context, projectID, userID string) (bool, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *slog.Logger
	Queue    JobQueue
	Projects ProjectReader
}

// JobHandler handles job trigger and status HTTP requests
type JobHandler struct {
	logger   *slog.Logger
	queue    JobQueue
	projects ProjectReader
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:   deps.Logger,
		queue:    deps.Queue,
		projects: deps.Projects,
	}
}
