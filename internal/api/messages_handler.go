package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/internhub/messaging/internal/engine"
	"github.com/internhub/messaging/internal/models"
)

// maxSendMemory bounds how much of a multipart send is held in memory
// before spilling to temp files.
const maxSendMemory = 10 << 20 // 10 MB

// MessagesHandler handles message sends from the UI.
type MessagesHandler struct {
	manager *engine.Manager
}

// NewMessagesHandler creates a new MessagesHandler instance.
func NewMessagesHandler(manager *engine.Manager) *MessagesHandler {
	return &MessagesHandler{manager: manager}
}

// draftPayload mirrors the draft back to the UI on failure so the
// composer can be restored without the user retyping anything.
type draftPayload struct {
	RecipientID string `json:"recipient_id"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	ReplyToID   *int64 `json:"reply_to_id,omitempty"`
}

// SendMessage accepts a draft as JSON or as a multipart form (the latter
// for attachments) and performs an optimistic send through the session.
func (h *MessagesHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, _, ok := GetSessionFromRequest(w, r, h.manager)
	if !ok {
		return
	}

	draft, ok := h.parseDraft(w, r)
	if !ok {
		return
	}

	staged, err := session.Send(r.Context(), draft)
	if err != nil {
		h.writeSendError(w, draft, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	WriteJSONBody(w, staged)
}

func (h *MessagesHandler) parseDraft(w http.ResponseWriter, r *http.Request) (models.Draft, bool) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxSendMemory); err != nil {
			http.Error(w, "Invalid multipart form", http.StatusBadRequest)
			return models.Draft{}, false
		}

		draft := models.Draft{
			RecipientID: r.FormValue("recipient_id"),
			Subject:     r.FormValue("subject"),
			Body:        r.FormValue("message"),
		}
		if replyTo := r.FormValue("reply_to_id"); replyTo != "" {
			id, err := strconv.ParseInt(replyTo, 10, 64)
			if err != nil {
				http.Error(w, "Invalid reply_to_id", http.StatusBadRequest)
				return models.Draft{}, false
			}
			draft.ReplyToID = &id
		}

		if file, header, err := r.FormFile("attachment"); err == nil {
			draft.Attachment = file
			draft.AttachmentName = header.Filename
		}

		return draft, true
	}

	var payload draftPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return models.Draft{}, false
	}

	return models.Draft{
		RecipientID: payload.RecipientID,
		Subject:     payload.Subject,
		Body:        payload.Body,
		ReplyToID:   payload.ReplyToID,
	}, true
}

// writeSendError distinguishes validation failures (rejected before any
// network call) from send failures (rolled back, retryable). Both echo
// the draft so the UI can restore the composer.
func (h *MessagesHandler) writeSendError(w http.ResponseWriter, draft models.Draft, err error) {
	status := http.StatusBadGateway
	if errors.Is(err, engine.ErrNoRecipient) || errors.Is(err, engine.ErrEmptyBody) {
		status = http.StatusBadRequest
	} else {
		log.Printf("MessagesHandler: Send failed: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	WriteJSONBody(w, map[string]any{
		"error": err.Error(),
		"draft": draftPayload{
			RecipientID: draft.RecipientID,
			Subject:     draft.Subject,
			Body:        draft.Body,
			ReplyToID:   draft.ReplyToID,
		},
	})
}
