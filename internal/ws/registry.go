package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Conn is the transport surface the registry needs from a client
// connection.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Registry indexes live client connections by the project they watch and
// fans broadcast payloads out to exactly that project's watchers.
//
// One instance lives in the server process; it is passed explicitly into
// the websocket handler and the event dispatcher rather than held as
// package state.
type Registry struct {
	mu       sync.Mutex
	logger   *slog.Logger
	projects map[string]map[Conn]struct{}
}

// NewRegistry creates an empty Registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger,
		projects: make(map[string]map[Conn]struct{}),
	}
}

// Connect admits a connection into the set for projectID. Authorization
// must already have succeeded; the registry performs none itself.
func (r *Registry) Connect(conn Conn, projectID string) {
	r.mu.Lock()
	set, ok := r.projects[projectID]
	if !ok {
		set = make(map[Conn]struct{})
		r.projects[projectID] = set
	}
	set[conn] = struct{}{}
	total := len(set)
	r.mu.Unlock()

	r.logger.Info("Client connected",
		slog.String("project_id", projectID),
		slog.Int("total", total),
	)
}

// Disconnect removes a connection from the project's set. Removing a
// connection that is not present is a no-op. An emptied set is deleted
// so the map never holds dangling entries.
func (r *Registry) Disconnect(conn Conn, projectID string) {
	r.mu.Lock()
	if set, ok := r.projects[projectID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(r.projects, projectID)
		}
	}
	r.mu.Unlock()

	r.logger.Info("Client disconnected",
		slog.String("project_id", projectID),
	)
}

// Count reports how many connections watch projectID
func (r *Registry) Count(projectID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.projects[projectID])
}

// BroadcastToProject sends payload to every connection watching
// projectID. The set is snapshotted before iterating so sends never race
// with admission or eviction. A failed send marks that connection dead:
// it is evicted and delivery continues for the rest.
func (r *Registry) BroadcastToProject(projectID string, payload json.RawMessage) {
	r.mu.Lock()
	set, ok := r.projects[projectID]
	if !ok {
		r.mu.Unlock()
		return
	}
	snapshot := make([]Conn, 0, len(set))
	for conn := range set {
		snapshot = append(snapshot, conn)
	}
	r.mu.Unlock()

	for _, conn := range snapshot {
		if err := conn.WriteJSON(payload); err != nil {
			r.logger.Error("Failed to send to client, evicting connection",
				slog.String("project_id", projectID),
				slog.Any("error", err),
			)
			r.Disconnect(conn, projectID)
			_ = conn.Close()
		}
	}
}

// Shutdown closes and removes every connection; called once when the
// server process stops.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	var conns []Conn
	for _, set := range r.projects {
		for conn := range set {
			conns = append(conns, conn)
		}
	}
	r.projects = make(map[string]map[Conn]struct{})
	r.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}

	r.logger.Info("Connection registry drained",
		slog.Int("closed", len(conns)),
	)
}
