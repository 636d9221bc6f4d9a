package api

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/internhub/messaging/internal/auth"
	"github.com/internhub/messaging/internal/engine"
	ws "github.com/internhub/messaging/internal/websocket"
)

// WebSocketHandler handles the /api/v1/ws endpoint for pushed
// notification and typing events.
type WebSocketHandler struct {
	manager *engine.Manager
	hub     *ws.Hub
}

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(manager *engine.Manager, hub *ws.Hub) *WebSocketHandler {
	return &WebSocketHandler{manager: manager, hub: hub}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// This server is expected to run behind a reverse proxy in a
		// trusted environment.
		return true
	},
}

// Handle upgrades the HTTP connection to a WebSocket and registers it with the Hub.
// Authentication is handled via query parameter (?token=...) since browsers
// cannot set headers on WebSocket connections; the Authorization header is
// accepted as a fallback for non-browser clients.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if headerToken, ok := auth.BearerToken(r); ok {
			token = headerToken
		}
	}

	if token == "" {
		log.Printf("WebSocketHandler: No token provided (neither query parameter nor Authorization header)")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := auth.ResolveUser(token)
	if err != nil {
		log.Printf("WebSocketHandler: Token resolution failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// Make sure a sync session is polling for this user before the
	// socket starts waiting for its events.
	session, err := h.manager.Session(userID, token)
	if err != nil {
		log.Printf("WebSocketHandler: Failed to get session for user %s: %v", userID, err)
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocketHandler: failed to upgrade connection for user %s: %v", userID, err)
		return
	}

	client := h.hub.Register(userID, conn)
	if client == nil {
		log.Printf("WebSocketHandler: Connection rejected for user %s (max connections exceeded)", userID)
		return
	}

	log.Printf("WebSocketHandler: WebSocket connection established for user %s", userID)

	// A fresh connection usually means a fresh page; refresh so the first
	// render is not a poll interval behind.
	if err := session.Refresh(r.Context()); err != nil {
		log.Printf("WebSocketHandler: Failed to refresh session for user %s: %v", userID, err)
	}

	go h.readLoop(userID, client)
}

// readLoop reads from the WebSocket until the connection closes. When the
// user's last connection goes away, the sync session is stopped too: no
// periodic work may outlive the views it feeds.
func (h *WebSocketHandler) readLoop(userID string, client *ws.Client) {
	conn := client.Conn()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.hub.Unregister(userID, client)

	if h.hub.ActiveConnections(userID) == 0 {
		log.Printf("WebSocketHandler: No active connections remaining for user %s, stopping session", userID)
		h.manager.Stop(userID)
	}
}
