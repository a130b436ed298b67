package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// TokenVerifier validates the bearer credential supplied at connect time
type TokenVerifier interface {
	Verify(token string) (userID string, err error)
}

// ProjectAuthorizer answers whether a user owns a project
type ProjectAuthorizer interface {
	Owns(ctx context.Context, projectID, userID string) (bool, error)
}

// Handler upgrades client connections, authorizes them, and ties their
// lifetime to the registry.
type Handler struct {
	logger   *slog.Logger
	registry *Registry
	verifier TokenVerifier
	projects ProjectAuthorizer
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket Handler bound to the given registry
func NewHandler(logger *slog.Logger, registry *Registry, verifier TokenVerifier, projects ProjectAuthorizer) *Handler {
	return &Handler{
		logger:   logger,
		registry: registry,
		verifier: verifier,
		projects: projects,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers cannot set custom headers on websocket
				// connects; auth happens via the token query parameter.
				return true
			},
		},
	}
}

// client wraps a websocket connection with a write lock so registry
// broadcasts and close frames never interleave on the wire.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
	return c.conn.Close()
}

// closePolicyViolation rejects a connection that failed authentication
// or authorization. Close code 1008 is the only signal the client gets.
func (c *client) closePolicyViolation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""))
	_ = c.conn.Close()
}

// Serve handles GET /ws/projects/:project_id?token=<credential>.
//
// Flow: upgrade, verify the credential, check project ownership, admit
// into the registry, then idle reading (and ignoring) keepalive frames
// until the client goes away.
func (h *Handler) Serve(c *gin.Context) {
	projectID := c.Param("project_id")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket connection",
			slog.Any("error", err),
		)
		return
	}

	cl := &client{conn: conn}

	userID, err := h.verifier.Verify(c.Query("token"))
	if err != nil {
		h.logger.Warn("Unauthenticated websocket connection attempted",
			slog.String("project_id", projectID),
		)
		cl.closePolicyViolation()
		return
	}

	owns, err := h.projects.Owns(c.Request.Context(), projectID, userID)
	if err != nil {
		h.logger.Error("Failed to check project ownership",
			slog.String("project_id", projectID),
			slog.Any("error", err),
		)
		cl.closePolicyViolation()
		return
	}
	if !owns {
		h.logger.Warn("Unauthorized websocket access to project",
			slog.String("project_id", projectID),
			slog.String("user_id", userID),
		)
		cl.closePolicyViolation()
		return
	}

	h.registry.Connect(cl, projectID)
	defer h.registry.Disconnect(cl, projectID)

	// The server only pushes; inbound text frames are client keepalives
	// and are ignored. Read errors (including normal closure) end the
	// connection's life.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("Websocket read error",
					slog.String("project_id", projectID),
					slog.Any("error", err),
				)
			}
			return
		}
	}
}
