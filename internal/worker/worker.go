package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ai-testgen/backend/internal/job"
)

// Broker is the queue surface the worker needs: a consumer for claimed
// jobs and a publisher for retry re-submission.
type Broker interface {
	ConsumeJobs(consumerTag string) (<-chan amqp.Delivery, error)
	PublishJob(ctx context.Context, body []byte) error
}

// State persists job lifecycle transitions
type State interface {
	Claim(ctx context.Context, jobID string) (*job.Job, error)
	MarkSuccess(ctx context.Context, jobID string, result any) error
	MarkFailed(ctx context.Context, jobID, errorMessage string) error
	Requeue(ctx context.Context, jobID string) (int, error)
}

// Runner executes one claimed job
type Runner interface {
	Execute(ctx context.Context, j *job.Job) (result any, retryAfter time.Duration, err error)
}

// Config holds worker configuration
type Config struct {
	Logger      *slog.Logger
	Broker      Broker
	State       State
	Executor    Runner
	Concurrency int
	JobTimeout  time.Duration
}

// Worker consumes job messages, claims the referenced job record, and
// runs it through the executor on a fixed-size goroutine pool.
type Worker struct {
	logger      *slog.Logger
	broker      Broker
	state       State
	executor    Runner
	concurrency int
	jobTimeout  time.Duration
	workerID    string
	jobsChan    chan task
	wg          sync.WaitGroup
	stopChan    chan struct{}
}

type task struct {
	jobID    string
	delivery amqp.Delivery
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	return &Worker{
		logger:      cfg.Logger,
		broker:      cfg.Broker,
		state:       cfg.State,
		executor:    cfg.Executor,
		concurrency: cfg.Concurrency,
		jobTimeout:  cfg.JobTimeout,
		workerID:    fmt.Sprintf("worker-%s", uuid.New().String()[:8]),
		jobsChan:    make(chan task),
		stopChan:    make(chan struct{}),
	}
}

// Start begins consuming and processing jobs. It blocks until the
// context is canceled or the broker delivery channel closes, then
// drains the pool before returning.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.broker.ConsumeJobs(w.workerID)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	w.spawnWorkerPool(ctx)
	w.dispatchDeliveries(ctx, deliveries)

	close(w.jobsChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped", slog.String("worker_id", w.workerID))

	return nil
}

// Stop signals all worker goroutines to finish and waits for them
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...", slog.String("worker_id", w.workerID))
	close(w.stopChan)
	w.wg.Wait()
}

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned",
		slog.Int("worker_count", w.concurrency),
	)
}

// dispatchDeliveries parses broker deliveries and feeds them to the pool
func (w *Worker) dispatchDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case <-w.stopChan:
			w.logger.Info("Message dispatcher stopped - worker stopping")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			var msg job.Message
			if err := json.Unmarshal(delivery.Body, &msg); err != nil {
				w.logger.Error("Failed to parse message JSON",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				w.nack(delivery, false)
				continue
			}

			if _, err := uuid.Parse(msg.JobID); err != nil {
				w.logger.Error("Invalid job_id format - not a UUID",
					slog.String("job_id", msg.JobID),
				)
				w.nack(delivery, false)
				continue
			}

			select {
			case w.jobsChan <- task{jobID: msg.JobID, delivery: delivery}:
			case <-ctx.Done():
				// Put the message back so another worker can pick it up
				w.nack(delivery, true)
				return
			}
		}
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping",
				slog.String("worker_name", workerName),
			)
			return

		case t, ok := <-w.jobsChan:
			if !ok {
				return
			}

			w.logger.Info("Worker received job",
				slog.String("worker_name", workerName),
				slog.String("job_id", t.jobID),
			)
			w.processJob(ctx, t)
		}
	}
}

// processJob claims the job record, executes it, and settles both the
// broker message and the job status according to the outcome.
func (w *Worker) processJob(ctx context.Context, t task) {
	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	j, err := w.state.Claim(jobCtx, t.jobID)
	if err != nil {
		switch {
		case errors.Is(err, job.ErrJobAlreadyClaimed), errors.Is(err, job.ErrJobNotFound):
			w.logger.Warn("Dropping job message",
				slog.String("job_id", t.jobID),
				slog.String("reason", err.Error()),
			)
			w.nack(t.delivery, false)
		default:
			w.logger.Error("Failed to claim job",
				slog.String("job_id", t.jobID),
				slog.String("error", err.Error()),
			)
			w.nack(t.delivery, true)
		}
		return
	}

	result, retryAfter, execErr := w.executor.Execute(jobCtx, j)

	switch {
	case execErr == nil:
		if err := w.state.MarkSuccess(jobCtx, j.JobID, result); err != nil {
			w.logger.Error("Failed to record job success",
				slog.String("job_id", j.JobID),
				slog.String("error", err.Error()),
			)
		}
		w.ack(t.delivery)

	case retryAfter > 0:
		// Attempts are not capped; the job keeps coming back until it
		// succeeds or is purged.
		attempt, err := w.state.Requeue(jobCtx, j.JobID)
		if err != nil {
			w.logger.Error("Failed to requeue job, putting message back",
				slog.String("job_id", j.JobID),
				slog.String("error", err.Error()),
			)
			w.nack(t.delivery, true)
			return
		}

		w.logger.Warn("Job failed, retry scheduled",
			slog.String("job_id", j.JobID),
			slog.Int("attempt", attempt),
			slog.Duration("retry_after", retryAfter),
			slog.String("error", execErr.Error()),
		)
		w.ack(t.delivery)
		w.scheduleRetry(j.JobID, retryAfter)

	default:
		if err := w.state.MarkFailed(jobCtx, j.JobID, execErr.Error()); err != nil {
			w.logger.Error("Failed to record job failure",
				slog.String("job_id", j.JobID),
				slog.String("error", err.Error()),
			)
		}
		w.logger.Error("Job failed",
			slog.String("job_id", j.JobID),
			slog.String("error", execErr.Error()),
		)
		w.ack(t.delivery)
	}
}

// scheduleRetry re-publishes the job message after a delay. The timer
// lives in this process; a crash before it fires loses the retry and
// the job stays QUEUED until resubmitted.
func (w *Worker) scheduleRetry(jobID string, delay time.Duration) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-w.stopChan:
			w.logger.Warn("Worker stopping, dropping pending retry",
				slog.String("job_id", jobID),
			)
			return
		case <-timer.C:
		}

		body, err := json.Marshal(job.Message{JobID: jobID})
		if err != nil {
			w.logger.Error("Failed to encode retry message",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
			return
		}

		if err := w.broker.PublishJob(context.Background(), body); err != nil {
			w.logger.Error("Failed to re-publish job for retry",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func (w *Worker) ack(d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		w.logger.Error("Failed to ACK message",
			slog.Uint64("delivery_tag", d.DeliveryTag),
			slog.String("error", err.Error()),
		)
	}
}

func (w *Worker) nack(d amqp.Delivery, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		w.logger.Error("Failed to NACK message",
			slog.Uint64("delivery_tag", d.DeliveryTag),
			slog.String("error", err.Error()),
		)
	}
}
