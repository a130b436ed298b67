package event

import "encoding/json"

// Event type discriminators, carried in the "event" field of every
// server-to-client message.
const (
	TypeScanProgress       = "SCAN_PROGRESS"
	TypeGenerationProgress = "GENERATION_PROGRESS"
	TypeHealingStatus      = "HEALING_STATUS"
	TypeJobCompleted       = "JOB_COMPLETED"
)

// Healing statuses carried by HEALING_STATUS events.
const (
	HealingStarted = "STARTED"
	HealingHealed  = "HEALED"
	HealingFailed  = "FAILED"
)

// Envelope is the wire format on the broadcast exchange. The dispatcher
// uses ProjectID for fanout and forwards Data untouched to clients.
type Envelope struct {
	ProjectID string          `json:"project_id"`
	Data      json.RawMessage `json:"data"`
}

// Progress is a percentage milestone for scan and generation jobs
type Progress struct {
	Event      string `json:"event"`
	Percentage int    `json:"percentage"`
	Message    string `json:"message"`
}

// HealingStatus reports the state of one healing attempt
type HealingStatus struct {
	Event   string `json:"event"`
	TestID  string `json:"test_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// JobCompleted marks a job's terminal success with a result count
type JobCompleted struct {
	Event   string `json:"event"`
	JobType string `json:"job_type"`
	Count   int    `json:"count"`
}

// ScanProgress builds a SCAN_PROGRESS milestone
func ScanProgress(percentage int, message string) Progress {
	return Progress{Event: TypeScanProgress, Percentage: percentage, Message: message}
}

// GenerationProgress builds a GENERATION_PROGRESS milestone
func GenerationProgress(percentage int, message string) Progress {
	return Progress{Event: TypeGenerationProgress, Percentage: percentage, Message: message}
}

// Healing builds a HEALING_STATUS event for the given test case
func Healing(testID, status, message string) HealingStatus {
	return HealingStatus{Event: TypeHealingStatus, TestID: testID, Status: status, Message: message}
}

// Completed builds a JOB_COMPLETED event
func Completed(jobType string, count int) JobCompleted {
	return JobCompleted{Event: TypeJobCompleted, JobType: jobType, Count: count}
}
