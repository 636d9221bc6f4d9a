package api

import (
	"log"
	"net/http"
	"strings"

	"github.com/internhub/messaging/internal/engine"
	"github.com/internhub/messaging/internal/models"
)

// ConversationsHandler serves the derived conversation list and the
// per-conversation operations (read acks, deletion, open/close cadence).
type ConversationsHandler struct {
	manager *engine.Manager
}

// NewConversationsHandler creates a new ConversationsHandler instance.
func NewConversationsHandler(manager *engine.Manager) *ConversationsHandler {
	return &ConversationsHandler{manager: manager}
}

// GetConversations returns every conversation, newest activity first.
func (h *ConversationsHandler) GetConversations(w http.ResponseWriter, r *http.Request) {
	session, _, ok := GetSessionFromRequest(w, r, h.manager)
	if !ok {
		return
	}

	conversations, err := session.Conversations(r.Context())
	if err != nil {
		log.Printf("ConversationsHandler: Failed to get conversations: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if conversations == nil {
		conversations = []models.Conversation{}
	}

	WriteJSONResponse(w, map[string]any{"conversations": conversations})
}

// HandleConversation routes /api/v1/conversations/{counterpart_id}[/op].
// Supported: GET (fetch one), DELETE (delete whole conversation),
// POST .../read (acknowledge), POST .../open (fast poll cadence).
func (h *ConversationsHandler) HandleConversation(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/conversations/")
	if path == "" || path == r.URL.Path {
		http.Error(w, "counterpart_id is required", http.StatusBadRequest)
		return
	}

	counterpartID, op, _ := strings.Cut(path, "/")
	if counterpartID == "" {
		http.Error(w, "counterpart_id is required", http.StatusBadRequest)
		return
	}

	session, _, ok := GetSessionFromRequest(w, r, h.manager)
	if !ok {
		return
	}

	switch {
	case op == "" && r.Method == http.MethodGet:
		h.getConversation(w, r, session, counterpartID)
	case op == "" && r.Method == http.MethodDelete:
		h.deleteConversation(w, r, session, counterpartID)
	case op == "read" && r.Method == http.MethodPost:
		h.markRead(w, r, session, counterpartID)
	case op == "open" && r.Method == http.MethodPost:
		h.openConversation(w, r, session, counterpartID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// CloseConversation returns the session to the idle poll cadence.
func (h *ConversationsHandler) CloseConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, _, ok := GetSessionFromRequest(w, r, h.manager)
	if !ok {
		return
	}

	if err := session.CloseConversation(r.Context()); err != nil {
		log.Printf("ConversationsHandler: Failed to close conversation: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ConversationsHandler) getConversation(w http.ResponseWriter, r *http.Request, session *engine.Session, counterpartID string) {
	conversation, found, err := session.Conversation(r.Context(), counterpartID)
	if err != nil {
		log.Printf("ConversationsHandler: Failed to get conversation: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}

	typing, err := session.RemoteTyping(r.Context(), counterpartID)
	if err != nil {
		log.Printf("ConversationsHandler: Failed to get typing state: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	WriteJSONResponse(w, map[string]any{
		"conversation":       conversation,
		"counterpart_typing": typing,
	})
}

func (h *ConversationsHandler) deleteConversation(w http.ResponseWriter, r *http.Request, session *engine.Session, counterpartID string) {
	if err := session.DeleteConversation(r.Context(), counterpartID); err != nil {
		log.Printf("ConversationsHandler: Failed to delete conversation with %s: %v", counterpartID, err)
		http.Error(w, "Failed to delete conversation", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConversationsHandler) markRead(w http.ResponseWriter, r *http.Request, session *engine.Session, counterpartID string) {
	if err := session.MarkConversationRead(r.Context(), counterpartID); err != nil {
		log.Printf("ConversationsHandler: Failed to mark conversation with %s read: %v", counterpartID, err)
		http.Error(w, "Failed to mark conversation read", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConversationsHandler) openConversation(w http.ResponseWriter, r *http.Request, session *engine.Session, counterpartID string) {
	if err := session.OpenConversation(r.Context(), counterpartID); err != nil {
		log.Printf("ConversationsHandler: Failed to open conversation with %s: %v", counterpartID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
