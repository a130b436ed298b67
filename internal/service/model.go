// Package service holds the domain logic behind the job executor: the
// codebase scanner, the AI test generator, and the self-healing
// routine, plus their Postgres persistence.
package service

import (
	"errors"
	"time"
)

var (
	ErrProjectNotFound  = errors.New("project not found")
	ErrEndpointNotFound = errors.New("endpoint not found")
	ErrTestCaseNotFound = errors.New("test case not found")
)

// Frameworks a scan can attribute a route to
const (
	FrameworkFastAPI = "FASTAPI"
	FrameworkExpress = "EXPRESS"
)

// Test case lifecycle statuses
const (
	TestStatusDraft  = "DRAFT"
	TestStatusActive = "ACTIVE"
	TestStatusBroken = "BROKEN"
	TestStatusHealed = "HEALED"
)

// Project groups the endpoints and tests for one repository
type Project struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	GitURL    string    `db:"git_url"`
	OwnerID   string    `db:"owner_id"`
	CreatedAt time.Time `db:"created_at"`
}

// Endpoint is an API route discovered in a project's codebase
type Endpoint struct {
	ID        string    `db:"id"`
	ProjectID string    `db:"project_id"`
	Method    string    `db:"method"`
	Path      string    `db:"path"`
	Framework string    `db:"framework"`
	CreatedAt time.Time `db:"created_at"`
}

// TestCase is an AI-generated test for one endpoint
type TestCase struct {
	ID          string    `db:"id"`
	EndpointID  string    `db:"endpoint_id"`
	Description string    `db:"description"`
	Priority    string    `db:"priority"`
	TestCode    string    `db:"test_code"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
}

// EndpointContext is an endpoint joined with the owning project's
// name, the context the generation prompt needs.
type EndpointContext struct {
	Endpoint
	ProjectName string `db:"project_name"`
}

// TestCaseContext is a test case joined with its endpoint, the
// context the healing prompt needs.
type TestCaseContext struct {
	TestCase
	Method    string `db:"method"`
	Path      string `db:"path"`
	Framework string `db:"framework"`
}
