package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Broker is the work-queue surface the dispatcher needs
type Broker interface {
	PublishJob(ctx context.Context, body []byte) error
}

// State is the queue backend surface the dispatcher needs
type State interface {
	Insert(ctx context.Context, j *Job) error
	Get(ctx context.Context, jobID string) (*Job, error)
	PurgeExpired(ctx context.Context, retention time.Duration) (int64, error)
}

// Queue accepts job descriptions, assigns identifiers, and hands work to
// the broker; status lookup reads whatever the backend currently reports.
type Queue struct {
	broker Broker
	state  State
	logger *slog.Logger
}

// NewQueue creates a Queue over the given broker and backend state
func NewQueue(broker Broker, state State, logger *slog.Logger) *Queue {
	return &Queue{
		broker: broker,
		state:  state,
		logger: logger,
	}
}

// Enqueue records a new QUEUED job and publishes its submission message.
// The broker is assumed reachable; a publish failure is propagated to
// the caller as a hard error.
func (q *Queue) Enqueue(ctx context.Context, jobType, projectID string, args any) (string, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job args: %w", err)
	}

	j := &Job{
		JobID:     uuid.New().String(),
		Type:      jobType,
		ProjectID: projectID,
		Args:      argsJSON,
		Status:    StatusQueued,
		Attempt:   0,
	}

	if err := q.state.Insert(ctx, j); err != nil {
		return "", fmt.Errorf("failed to record job: %w", err)
	}

	body, err := json.Marshal(Message{JobID: j.JobID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal job message: %w", err)
	}

	if err := q.broker.PublishJob(ctx, body); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	q.logger.Info("Job enqueued",
		slog.String("job_id", j.JobID),
		slog.String("job_type", jobType),
		slog.String("project_id", projectID),
	)

	return j.JobID, nil
}

// Status reports the backend's current view of a job. The result field
// is populated only once the status is terminal, and records are purged
// after the retention window, so callers must not rely on late polling.
func (q *Queue) Status(ctx context.Context, jobID string) (*StatusReport, error) {
	j, err := q.state.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{
		JobID:  j.JobID,
		Status: j.Status,
	}
	if Terminal(j.Status) {
		report.Result = j.Result
		report.ErrorMessage = j.ErrorMessage
	}

	return report, nil
}

// RunReaper periodically purges terminal job records past the retention
// window; blocks until the context is cancelled.
func (q *Queue) RunReaper(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	q.logger.Info("Job reaper started",
		slog.Duration("interval", interval),
		slog.Duration("retention", retention),
	)

	for {
		select {
		case <-ctx.Done():
			q.logger.Info("Job reaper stopped")
			return
		case <-ticker.C:
			if _, err := q.state.PurgeExpired(ctx, retention); err != nil {
				q.logger.Error("Failed to purge expired jobs",
					slog.Any("error", err),
				)
			}
		}
	}
}
