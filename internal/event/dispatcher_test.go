package event

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	deliveries   chan amqp.Delivery
	unsubscribed bool
}

func (f *fakeSource) SubscribeEvents() (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeSource) Unsubscribe() error {
	f.unsubscribed = true
	return nil
}

type recordedBroadcast struct {
	projectID string
	payload   json.RawMessage
}

type fakeBroadcaster struct {
	mu    sync.Mutex
	calls []recordedBroadcast
}

func (f *fakeBroadcaster) BroadcastToProject(projectID string, payload json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedBroadcast{projectID: projectID, payload: payload})
}

func (f *fakeBroadcaster) recorded() []recordedBroadcast {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedBroadcast, len(f.calls))
	copy(out, f.calls)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func envelopeBody(t *testing.T, projectID string, data any) []byte {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	body, err := json.Marshal(Envelope{ProjectID: projectID, Data: payload})
	require.NoError(t, err)
	return body
}

func TestDispatcher_ForwardsEventsUnchanged(t *testing.T) {
	source := &fakeSource{deliveries: make(chan amqp.Delivery, 4)}
	registry := &fakeBroadcaster{}
	d := NewDispatcher(source, registry, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	ev := ScanProgress(30, "Analyzing codebase...")
	source.deliveries <- amqp.Delivery{Body: envelopeBody(t, "P1", ev)}

	waitFor(t, func() bool { return len(registry.recorded()) == 1 })

	got := registry.recorded()[0]
	assert.Equal(t, "P1", got.projectID)

	var decoded Progress
	require.NoError(t, json.Unmarshal(got.payload, &decoded))
	assert.Equal(t, ev, decoded)

	cancel()
	require.NoError(t, <-done)
	assert.True(t, source.unsubscribed)
}

func TestDispatcher_SurvivesMalformedMessage(t *testing.T) {
	source := &fakeSource{deliveries: make(chan amqp.Delivery, 4)}
	registry := &fakeBroadcaster{}
	d := NewDispatcher(source, registry, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	source.deliveries <- amqp.Delivery{Body: []byte("{not json")}
	source.deliveries <- amqp.Delivery{Body: envelopeBody(t, "P1", Completed("scan", 7))}

	waitFor(t, func() bool { return len(registry.recorded()) == 1 })

	got := registry.recorded()[0]
	assert.Equal(t, "P1", got.projectID)
	assert.JSONEq(t, `{"event":"JOB_COMPLETED","job_type":"scan","count":7}`, string(got.payload))

	cancel()
	require.NoError(t, <-done)
}

func TestDispatcher_DropsEventWithoutProjectID(t *testing.T) {
	source := &fakeSource{deliveries: make(chan amqp.Delivery, 4)}
	registry := &fakeBroadcaster{}
	d := NewDispatcher(source, registry, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	source.deliveries <- amqp.Delivery{Body: []byte(`{"data":{"event":"SCAN_PROGRESS"}}`)}
	source.deliveries <- amqp.Delivery{Body: envelopeBody(t, "P2", Completed("generation", 2))}

	waitFor(t, func() bool { return len(registry.recorded()) == 1 })
	assert.Equal(t, "P2", registry.recorded()[0].projectID)

	cancel()
	require.NoError(t, <-done)
}

func TestDispatcher_ExitsOnClosedSubscription(t *testing.T) {
	source := &fakeSource{deliveries: make(chan amqp.Delivery)}
	registry := &fakeBroadcaster{}
	d := NewDispatcher(source, registry, slog.New(slog.DiscardHandler))

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	close(source.deliveries)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not exit after subscription closed")
	}
	assert.True(t, source.unsubscribed)
}
