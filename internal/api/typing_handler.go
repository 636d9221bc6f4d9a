package api

import (
	"log"
	"net/http"

	"github.com/internhub/messaging/internal/engine"
)

// TypingHandler receives composer input events from the UI and exposes
// the unread summary.
type TypingHandler struct {
	manager *engine.Manager
}

// NewTypingHandler creates a new TypingHandler instance.
func NewTypingHandler(manager *engine.Manager) *TypingHandler {
	return &TypingHandler{manager: manager}
}

// ComposerInput records one keystroke in the active conversation's
// composer. The UI calls this on every input event; the session debounces.
func (h *TypingHandler) ComposerInput(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, _, ok := GetSessionFromRequest(w, r, h.manager)
	if !ok {
		return
	}

	if err := session.ComposerInput(r.Context()); err != nil {
		log.Printf("TypingHandler: Failed to record composer input: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetUnread returns the total unread count, for badges rendered outside
// the conversation list.
func (h *TypingHandler) GetUnread(w http.ResponseWriter, r *http.Request) {
	session, _, ok := GetSessionFromRequest(w, r, h.manager)
	if !ok {
		return
	}

	total, err := session.UnreadTotal(r.Context())
	if err != nil {
		log.Printf("TypingHandler: Failed to get unread total: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	WriteJSONResponse(w, map[string]int{"unread_total": total})
}
