package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Store is the Postgres persistence for projects, endpoints, and test
// cases
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store over an existing database connection
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// GetProject fetches one project by id
func (s *Store) GetProject(ctx context.Context, projectID string) (*Project, error) {
	const query = `
		SELECT id, name, git_url, owner_id, created_at
		FROM projects
		WHERE id = $1`

	var p Project
	if err := s.db.GetContext(ctx, &p, query, projectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to fetch project: %w", err)
	}
	return &p, nil
}

// Owns reports whether userID is the owner of projectID
func (s *Store) Owns(ctx context.Context, projectID, userID string) (bool, error) {
	const query = `SELECT owner_id FROM projects WHERE id = $1`

	var ownerID string
	if err := s.db.GetContext(ctx, &ownerID, query, projectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check project ownership: %w", err)
	}
	return ownerID == userID, nil
}

// ReplaceEndpoints swaps a project's endpoint set for the freshly
// scanned one in a single transaction.
func (s *Store) ReplaceEndpoints(ctx context.Context, projectID string, endpoints []Endpoint) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM endpoints WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("failed to clear old endpoints: %w", err)
	}

	const insert = `
		INSERT INTO endpoints (id, project_id, method, path, framework)
		VALUES ($1, $2, $3, $4, $5)`

	for _, ep := range endpoints {
		if _, err := tx.ExecContext(ctx, insert, uuid.New().String(), projectID, ep.Method, ep.Path, ep.Framework); err != nil {
			return fmt.Errorf("failed to insert endpoint %s %s: %w", ep.Method, ep.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit endpoint replacement: %w", err)
	}

	s.logger.Info("Endpoints replaced",
		slog.String("project_id", projectID),
		slog.Int("count", len(endpoints)),
	)
	return nil
}

// GetEndpointContext fetches an endpoint joined with its project name
func (s *Store) GetEndpointContext(ctx context.Context, endpointID string) (*EndpointContext, error) {
	const query = `
		SELECT e.id, e.project_id, e.method, e.path, e.framework, e.created_at,
		       p.name AS project_name
		FROM endpoints e
		JOIN projects p ON p.id = e.project_id
		WHERE e.id = $1`

	var ec EndpointContext
	if err := s.db.GetContext(ctx, &ec, query, endpointID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEndpointNotFound
		}
		return nil, fmt.Errorf("failed to fetch endpoint: %w", err)
	}
	return &ec, nil
}

// InsertTestCase stores a newly generated test case as DRAFT
func (s *Store) InsertTestCase(ctx context.Context, endpointID, description, priority, testCode string) error {
	const query = `
		INSERT INTO test_cases (id, endpoint_id, description, priority, test_code, status)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query, uuid.New().String(), endpointID, description, priority, testCode, TestStatusDraft)
	if err != nil {
		return fmt.Errorf("failed to insert test case: %w", err)
	}
	return nil
}

// GetTestCaseContext fetches a test case joined with its endpoint
func (s *Store) GetTestCaseContext(ctx context.Context, testCaseID string) (*TestCaseContext, error) {
	const query = `
		SELECT t.id, t.endpoint_id, t.description, t.priority, t.test_code, t.status, t.created_at,
		       e.method, e.path, e.framework
		FROM test_cases t
		JOIN endpoints e ON e.id = t.endpoint_id
		WHERE t.id = $1`

	var tc TestCaseContext
	if err := s.db.GetContext(ctx, &tc, query, testCaseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTestCaseNotFound
		}
		return nil, fmt.Errorf("failed to fetch test case: %w", err)
	}
	return &tc, nil
}

// MarkTestCaseHealed replaces a test case's code with the patched
// version and records the healing reason in its description.
func (s *Store) MarkTestCaseHealed(ctx context.Context, testCaseID, patchedCode, reason string) error {
	const query = `
		UPDATE test_cases
		SET test_code = $2,
		    status = $3,
		    description = '[HEALED] ' || description || E'\nReason: ' || $4
		WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, testCaseID, patchedCode, TestStatusHealed, reason)
	if err != nil {
		return fmt.Errorf("failed to update healed test case: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return ErrTestCaseNotFound
	}
	return nil
}
