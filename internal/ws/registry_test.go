package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	received []json.RawMessage
	failWith error
	closed   bool
}

func (f *fakeConn) WriteJSON(v any) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.received = append(f.received, v.(json.RawMessage))
	return nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func newTestRegistry() *Registry {
	return NewRegistry(slog.New(slog.DiscardHandler))
}

func TestRegistry_BroadcastIsScopedToProject(t *testing.T) {
	r := newTestRegistry()

	pConns := []*fakeConn{{}, {}, {}}
	qConns := []*fakeConn{{}, {}}

	for _, c := range pConns {
		r.Connect(c, "P")
	}
	for _, c := range qConns {
		r.Connect(c, "Q")
	}

	payload := json.RawMessage(`{"event":"SCAN_PROGRESS","percentage":30,"message":"Analyzing codebase..."}`)
	r.BroadcastToProject("P", payload)

	for _, c := range pConns {
		require.Len(t, c.received, 1)
		assert.JSONEq(t, string(payload), string(c.received[0]))
	}
	for _, c := range qConns {
		assert.Empty(t, c.received)
	}
}

func TestRegistry_BroadcastToUnknownProjectIsNoop(t *testing.T) {
	r := newTestRegistry()
	// Must not panic or create an entry
	r.BroadcastToProject("ghost", json.RawMessage(`{}`))
	assert.Equal(t, 0, r.Count("ghost"))
}

func TestRegistry_DisconnectIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	conn := &fakeConn{}

	r.Connect(conn, "P")
	assert.Equal(t, 1, r.Count("P"))

	r.Disconnect(conn, "P")
	assert.Equal(t, 0, r.Count("P"))

	// Second disconnect of the same conn, and disconnect of a conn that
	// was never admitted, are both no-ops
	r.Disconnect(conn, "P")
	r.Disconnect(&fakeConn{}, "P")
	assert.Equal(t, 0, r.Count("P"))
}

func TestRegistry_EmptySetIsRemoved(t *testing.T) {
	r := newTestRegistry()
	conn := &fakeConn{}

	r.Connect(conn, "P")
	r.Disconnect(conn, "P")

	r.mu.Lock()
	_, exists := r.projects["P"]
	r.mu.Unlock()
	assert.False(t, exists, "emptied project set must be deleted from the map")
}

func TestRegistry_FailedSendEvictsOnlyThatConnection(t *testing.T) {
	r := newTestRegistry()

	healthy1 := &fakeConn{}
	dead := &fakeConn{failWith: errors.New("broken pipe")}
	healthy2 := &fakeConn{}

	r.Connect(healthy1, "P")
	r.Connect(dead, "P")
	r.Connect(healthy2, "P")

	payload := json.RawMessage(`{"event":"JOB_COMPLETED","job_type":"scan","count":3}`)
	r.BroadcastToProject("P", payload)

	assert.Len(t, healthy1.received, 1)
	assert.Len(t, healthy2.received, 1)
	assert.True(t, dead.closed)
	assert.Equal(t, 2, r.Count("P"))

	// The evicted connection stays gone on the next broadcast
	r.BroadcastToProject("P", payload)
	assert.Len(t, healthy1.received, 2)
	assert.Len(t, healthy2.received, 2)
}

func TestRegistry_Shutdown(t *testing.T) {
	r := newTestRegistry()

	conns := []*fakeConn{{}, {}, {}}
	r.Connect(conns[0], "P")
	r.Connect(conns[1], "P")
	r.Connect(conns[2], "Q")

	r.Shutdown()

	for _, c := range conns {
		assert.True(t, c.closed)
	}
	assert.Equal(t, 0, r.Count("P"))
	assert.Equal(t, 0, r.Count("Q"))
}
