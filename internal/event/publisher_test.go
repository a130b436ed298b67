package event

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroker struct {
	bodies [][]byte
	err    error
}

func (f *fakeBroker) PublishEvent(_ context.Context, body []byte) error {
	if f.err != nil {
		return f.err
	}
	f.bodies = append(f.bodies, body)
	return nil
}

func TestPublisher_WrapsEventInEnvelope(t *testing.T) {
	broker := &fakeBroker{}
	p := NewPublisher(broker, slog.New(slog.DiscardHandler))

	err := p.Publish(context.Background(), "P1", Healing("t-9", HealingStarted, "Analyzing failure..."))
	require.NoError(t, err)
	require.Len(t, broker.bodies, 1)

	assert.JSONEq(t,
		`{"project_id":"P1","data":{"event":"HEALING_STATUS","test_id":"t-9","status":"STARTED","message":"Analyzing failure..."}}`,
		string(broker.bodies[0]),
	)
}

func TestPublisher_PropagatesBrokerError(t *testing.T) {
	broker := &fakeBroker{err: errors.New("channel closed")}
	p := NewPublisher(broker, slog.New(slog.DiscardHandler))

	err := p.Publish(context.Background(), "P1", ScanProgress(10, "Cloning repository..."))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel closed")
}
