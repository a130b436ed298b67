package event

import (
	"context"
	"encoding/json"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Source is the subscription surface of the broadcast channel
type Source interface {
	SubscribeEvents() (<-chan amqp.Delivery, error)
	Unsubscribe() error
}

// Broadcaster receives decoded events for fanout to client connections
type Broadcaster interface {
	BroadcastToProject(projectID string, payload json.RawMessage)
}

// Dispatcher is the single subscriber bridging worker processes to the
// in-memory connection registry. One instance runs per server process.
type Dispatcher struct {
	source   Source
	registry Broadcaster
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher forwarding into the given registry
func NewDispatcher(source Source, registry Broadcaster, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		source:   source,
		registry: registry,
		logger:   logger,
	}
}

// Run subscribes to the broadcast exchange and forwards every event to
// the registry until the context is cancelled or the subscription dies.
// A transport-level failure ends the loop without reconnecting; job
// status remains available through polling while events are down.
func (d *Dispatcher) Run(ctx context.Context) error {
	deliveries, err := d.source.SubscribeEvents()
	if err != nil {
		return err
	}
	defer func() {
		if err := d.source.Unsubscribe(); err != nil {
			d.logger.Error("Failed to unsubscribe from event exchange",
				slog.Any("error", err),
			)
		}
	}()

	d.logger.Info("Event dispatcher listening for background events")

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Event dispatcher stopped - context canceled")
			return nil

		case msg, ok := <-deliveries:
			if !ok {
				// No reconnect: the subscription is gone and clients
				// stop receiving live events until the process restarts.
				d.logger.Error("Event subscription closed, dispatcher exiting")
				return nil
			}

			d.handle(msg.Body)
		}
	}
}

// handle decodes one envelope and hands it to the registry. A malformed
// message must never kill the only subscriber, so decode failures are
// logged and dropped.
func (d *Dispatcher) handle(body []byte) {
	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		d.logger.Error("Dropping malformed event",
			slog.Any("error", err),
			slog.Int("body_size", len(body)),
		)
		return
	}

	if envelope.ProjectID == "" {
		d.logger.Error("Dropping event without project id")
		return
	}

	d.registry.BroadcastToProject(envelope.ProjectID, envelope.Data)
}
