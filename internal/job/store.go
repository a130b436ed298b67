package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store is the queue backend's job state, kept in Postgres. Rows are
// owned by the queue for their lifetime and purged a fixed retention
// window after reaching a terminal status; nothing else reads or writes
// this table.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store on the given database handle
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Insert records a freshly enqueued job
func (s *Store) Insert(ctx context.Context, j *Job) error {
	query := `
		INSERT INTO jobs (
			job_id, job_type, project_id, args, status, attempt, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`

	_, err := s.db.ExecContext(ctx, query,
		j.JobID, j.Type, j.ProjectID, []byte(j.Args), j.Status, j.Attempt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	return nil
}

// Get loads a job record by id
func (s *Store) Get(ctx context.Context, jobID string) (*Job, error) {
	query := `
		SELECT job_id, job_type, project_id, args, status, attempt,
		       COALESCE(result, 'null'::jsonb) AS result,
		       COALESCE(error_message, '') AS error_message,
		       created_at, updated_at
		FROM jobs
		WHERE job_id = $1
	`

	var j Job
	if err := s.db.GetContext(ctx, &j, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &j, nil
}

// Claim transitions a job QUEUED -> RUNNING and returns the full record.
// The status guard makes the claim exclusive across worker processes.
func (s *Store) Claim(ctx context.Context, jobID string) (*Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status = $3
		RETURNING job_id, job_type, project_id, args, attempt
	`

	var j Job
	err := s.db.QueryRowContext(ctx, query, StatusRunning, jobID, StatusQueued).Scan(
		&j.JobID, &j.Type, &j.ProjectID, (*[]byte)(&j.Args), &j.Attempt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim job - already claimed or not found",
				slog.String("job_id", jobID),
			)
			return nil, ErrJobAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	j.Status = StatusRunning

	s.logger.Info("Job claimed",
		slog.String("job_id", j.JobID),
		slog.String("job_type", j.Type),
		slog.Int("attempt", j.Attempt),
	)

	return &j, nil
}

// MarkSuccess records a terminal SUCCESS with its result
func (s *Store) MarkSuccess(ctx context.Context, jobID string, result any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	query := `
		UPDATE jobs
		SET status = $1, result = $2, updated_at = NOW()
		WHERE job_id = $3
	`

	if _, err := s.db.ExecContext(ctx, query, StatusSuccess, resultJSON, jobID); err != nil {
		return fmt.Errorf("failed to mark job success: %w", err)
	}

	return nil
}

// MarkFailed records a terminal FAILED with a human-readable message
func (s *Store) MarkFailed(ctx context.Context, jobID, errorMsg string) error {
	query := `
		UPDATE jobs
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE job_id = $3
	`

	if _, err := s.db.ExecContext(ctx, query, StatusFailed, errorMsg, jobID); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	return nil
}

// Requeue puts a failed job back into QUEUED state with an incremented
// attempt count, returning the new count
func (s *Store) Requeue(ctx context.Context, jobID string) (int, error) {
	query := `
		UPDATE jobs
		SET status = $1, attempt = attempt + 1, updated_at = NOW()
		WHERE job_id = $2
		RETURNING attempt
	`

	var attempt int
	if err := s.db.QueryRowContext(ctx, query, StatusQueued, jobID).Scan(&attempt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrJobNotFound
		}
		return 0, fmt.Errorf("failed to requeue job: %w", err)
	}

	return attempt, nil
}

// PurgeExpired drops terminal job rows older than the retention window.
// Callers poll status; results are not kept around for late polling.
func (s *Store) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	query := `
		DELETE FROM jobs
		WHERE status IN ($1, $2)
		  AND updated_at < NOW() - $3::interval
	`

	interval := fmt.Sprintf("%d seconds", int(retention.Seconds()))
	res, err := s.db.ExecContext(ctx, query, StatusSuccess, StatusFailed, interval)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired jobs: %w", err)
	}

	purged, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if purged > 0 {
		s.logger.Info("Purged expired job records",
			slog.Int64("count", purged),
		)
	}

	return purged, nil
}
