package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ai-testgen/backend/internal/event"
	"github.com/ai-testgen/backend/internal/job"
)

// Fixed backoff per job type; a failing job is re-submitted after this
// delay with an incremented attempt count.
const (
	scanRetryDelay       = 10 * time.Second
	generationRetryDelay = 30 * time.Second
)

// ScannerService runs a full codebase scan for a project
type ScannerService interface {
	ScanProject(ctx context.Context, projectID, gitURL string) (int, error)
}

// GeneratorService generates and stores one test case for an endpoint
type GeneratorService interface {
	GenerateTest(ctx context.Context, endpointID string) error
}

// HealerService heals one broken test case, returning a short reason
type HealerService interface {
	HealTestCase(ctx context.Context, testCaseID string) (string, error)
}

// EventSink publishes progress events to the broadcast channel
type EventSink interface {
	Publish(ctx context.Context, projectID string, data any) error
}

// Executor runs one job to completion or failure, emitting milestone
// events along the way. Domain logic lives behind the service
// interfaces; the executor owns only sequencing, events, and the
// retry-vs-terminal decision.
type Executor struct {
	logger    *slog.Logger
	events    EventSink
	scanner   ScannerService
	generator GeneratorService
	healer    HealerService
}

// NewExecutor creates an Executor over the given collaborator services
func NewExecutor(logger *slog.Logger, events EventSink, scanner ScannerService, generator GeneratorService, healer HealerService) *Executor {
	return &Executor{
		logger:    logger,
		events:    events,
		scanner:   scanner,
		generator: generator,
		healer:    healer,
	}
}

// Execute dispatches a claimed job to its routine. The returned retry
// delay is zero for terminal outcomes; a non-zero delay means the job
// should be re-submitted after that long.
func (e *Executor) Execute(ctx context.Context, j *job.Job) (result any, retryAfter time.Duration, err error) {
	switch j.Type {
	case job.TypeScan:
		return e.runScan(ctx, j)
	case job.TypeGenerateBatch:
		return e.runGeneration(ctx, j)
	case job.TypeHeal:
		return e.runHeal(ctx, j)
	default:
		return nil, 0, fmt.Errorf("unknown job type %q", j.Type)
	}
}

// emit publishes a progress event. Events are advisory; a publish
// failure is logged and never fails the job.
func (e *Executor) emit(ctx context.Context, projectID string, data any) {
	if err := e.events.Publish(ctx, projectID, data); err != nil {
		e.logger.Warn("Failed to publish progress event",
			slog.String("project_id", projectID),
			slog.Any("error", err),
		)
	}
}

func (e *Executor) runScan(ctx context.Context, j *job.Job) (any, time.Duration, error) {
	var args job.ScanArgs
	if err := json.Unmarshal(j.Args, &args); err != nil {
		return nil, 0, fmt.Errorf("invalid scan args: %w", err)
	}

	e.logger.Info("Starting background scan job",
		slog.String("job_id", j.JobID),
		slog.String("project_id", j.ProjectID),
	)

	e.emit(ctx, j.ProjectID, event.ScanProgress(10, "Cloning repository..."))
	e.emit(ctx, j.ProjectID, event.ScanProgress(30, "Analyzing codebase..."))

	count, err := e.scanner.ScanProject(ctx, j.ProjectID, args.GitURL)
	if err != nil {
		e.emit(ctx, j.ProjectID, event.ScanProgress(0, fmt.Sprintf("Scan failed: %s", err)))
		return nil, scanRetryDelay, fmt.Errorf("scan failed: %w", err)
	}

	e.emit(ctx, j.ProjectID, event.ScanProgress(100, "Scan complete!"))
	e.emit(ctx, j.ProjectID, event.Completed("scan", count))

	e.logger.Info("Background scan finished",
		slog.String("job_id", j.JobID),
		slog.Int("endpoints_found", count),
	)

	return map[string]any{"status": "SUCCESS", "endpoints_found": count}, 0, nil
}

func (e *Executor) runGeneration(ctx context.Context, j *job.Job) (any, time.Duration, error) {
	var args job.GenerateArgs
	if err := json.Unmarshal(j.Args, &args); err != nil {
		return nil, 0, fmt.Errorf("invalid generation args: %w", err)
	}

	e.logger.Info("Starting background generation job",
		slog.String("job_id", j.JobID),
		slog.Int("endpoints", len(args.EndpointIDs)),
	)

	e.emit(ctx, j.ProjectID, event.GenerationProgress(0, "Initializing AI brain..."))

	success := 0
	total := len(args.EndpointIDs)
	for i, endpointID := range args.EndpointIDs {
		// The whole batch retries only on cancellation; one endpoint's
		// failure is logged, skipped, and must not block the rest.
		if ctx.Err() != nil {
			e.emit(ctx, j.ProjectID, event.GenerationProgress(0, fmt.Sprintf("Generation failed: %s", ctx.Err())))
			return nil, generationRetryDelay, fmt.Errorf("generation interrupted: %w", ctx.Err())
		}

		e.emit(ctx, j.ProjectID, event.GenerationProgress(
			i*100/total,
			fmt.Sprintf("Generating test %d/%d...", i+1, total),
		))

		if err := e.generator.GenerateTest(ctx, endpointID); err != nil {
			e.logger.Error("Failed to generate test for endpoint",
				slog.String("endpoint_id", endpointID),
				slog.Any("error", err),
			)
			continue
		}
		success++
	}

	e.emit(ctx, j.ProjectID, event.GenerationProgress(100, "Generation complete!"))
	e.emit(ctx, j.ProjectID, event.Completed("generation", success))

	e.logger.Info("Batch generation finished",
		slog.String("job_id", j.JobID),
		slog.Int("tests_generated", success),
	)

	return map[string]any{"status": "SUCCESS", "tests_generated": success}, 0, nil
}

func (e *Executor) runHeal(ctx context.Context, j *job.Job) (any, time.Duration, error) {
	var args job.HealArgs
	if err := json.Unmarshal(j.Args, &args); err != nil {
		return nil, 0, fmt.Errorf("invalid heal args: %w", err)
	}

	e.logger.Info("Self-healing job triggered",
		slog.String("job_id", j.JobID),
		slog.String("test_case_id", args.TestCaseID),
	)

	e.emit(ctx, j.ProjectID, event.Healing(args.TestCaseID, event.HealingStarted, "Analyzing failure..."))

	reason, err := e.healer.HealTestCase(ctx, args.TestCaseID)
	if err != nil {
		// Healing does not retry: the failure is reported and the job
		// ends FAILED
		e.emit(ctx, j.ProjectID, event.Healing(args.TestCaseID, event.HealingFailed, fmt.Sprintf("Healing failed: %s", err)))
		return nil, 0, fmt.Errorf("healing failed: %w", err)
	}

	e.emit(ctx, j.ProjectID, event.Healing(args.TestCaseID, event.HealingHealed, fmt.Sprintf("Test healed! %s", reason)))

	return map[string]any{"status": "HEALED", "test_id": args.TestCaseID}, 0, nil
}
