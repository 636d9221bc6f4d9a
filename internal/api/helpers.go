package api

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"

	"github.com/internhub/messaging/internal/auth"
	"github.com/internhub/messaging/internal/engine"
)

// GetSessionFromRequest resolves the authenticated user's sync session,
// creating it on first touch, and writes appropriate HTTP errors when it
// fails. Returns (session, userID, true) on success. Shared across
// handlers so session resolution and its error handling stay consistent.
func GetSessionFromRequest(w http.ResponseWriter, r *http.Request, manager *engine.Manager) (*engine.Session, string, bool) {
	ctx := r.Context()

	userID, ok := auth.GetUserIDFromContext(ctx)
	if !ok {
		log.Println("API: No user id in context")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, "", false
	}

	token, ok := auth.GetTokenFromContext(ctx)
	if !ok {
		log.Println("API: No token in context")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, "", false
	}

	session, err := manager.Session(userID, token)
	if err != nil {
		log.Printf("API: Failed to get session for user %s: %v", userID, err)
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return nil, "", false
	}

	return session, userID, true
}

// WriteJSONResponse encodes the response into a buffer first so a
// marshaling failure cannot produce a partial write. Returns false when
// writing failed; the error has already been sent.
func WriteJSONResponse(w http.ResponseWriter, response any) bool {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(response); err != nil {
		log.Printf("API: Failed to encode response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return false
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Printf("API: Failed to write response: %v", err)
		return false
	}
	return true
}

// WriteJSONBody encodes a response body after the status line has already
// been written, so it never touches headers.
func WriteJSONBody(w http.ResponseWriter, response any) {
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("API: Failed to write response body: %v", err)
	}
}
