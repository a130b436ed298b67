package job

import (
	"encoding/json"
	"errors"
	"time"
)

// Job types
const (
	TypeScan          = "SCAN"
	TypeGenerateBatch = "GENERATE_BATCH"
	TypeHeal          = "HEAL"
)

// Job statuses
const (
	StatusQueued  = "QUEUED"
	StatusRunning = "RUNNING"
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

var (
	// ErrJobNotFound is returned when a job id is unknown or its record
	// has already been purged past the retention window
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when claiming a job that is not
	// in QUEUED state
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in QUEUED status")
)

// Job is the queue-owned record of one unit of background work. It lives
// only in the queue backend: created at enqueue, mutated by the worker
// running it, purged a bounded time after reaching a terminal status.
type Job struct {
	JobID        string          `db:"job_id"`
	Type         string          `db:"job_type"`
	ProjectID    string          `db:"project_id"`
	Args         json.RawMessage `db:"args"`
	Status       string          `db:"status"`
	Attempt      int             `db:"attempt"`
	Result       json.RawMessage `db:"result"`
	ErrorMessage string          `db:"error_message"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// Message is the job submission carried on the work queue; workers load
// the full record from the queue backend by id.
type Message struct {
	JobID string `json:"job_id"`
	// DeliveryTag identifies the broker delivery for ack/nack
	DeliveryTag uint64 `json:"-"`
}

// ScanArgs are the arguments of a SCAN job
type ScanArgs struct {
	GitURL string `json:"git_url"`
}

// GenerateArgs are the arguments of a GENERATE_BATCH job
type GenerateArgs struct {
	EndpointIDs []string `json:"endpoint_ids"`
}

// HealArgs are the arguments of a HEAL job
type HealArgs struct {
	TestCaseID string `json:"test_case_id"`
}

// StatusReport is what pollers see: the current status plus the result
// or error once the job is terminal.
type StatusReport struct {
	JobID        string          `json:"job_id"`
	Status       string          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error,omitempty"`
}

// Terminal reports whether a status is final
func Terminal(status string) bool {
	return status == StatusSuccess || status == StatusFailed
}
