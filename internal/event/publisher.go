package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Broker is the broadcast-channel surface the publisher needs
type Broker interface {
	PublishEvent(ctx context.Context, body []byte) error
}

// Publisher serializes events into envelopes and writes them to the
// shared broadcast exchange. Callable from any worker process; delivery
// is at-most-once with no buffering or retry. Progress events are
// advisory, authoritative state is the job status lookup.
type Publisher struct {
	broker Broker
	logger *slog.Logger
}

// NewPublisher creates a Publisher on the given broker
func NewPublisher(broker Broker, logger *slog.Logger) *Publisher {
	return &Publisher{broker: broker, logger: logger}
}

// Publish wraps the event in an envelope and writes it once to the
// broadcast exchange
func (p *Publisher) Publish(ctx context.Context, projectID string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	body, err := json.Marshal(Envelope{
		ProjectID: projectID,
		Data:      payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	if err := p.broker.PublishEvent(ctx, body); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Event published",
		slog.String("project_id", projectID),
		slog.Int("payload_size", len(payload)),
	)

	return nil
}
