package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
)

type contextKey string

// UserIDKey is the context key used to store the authenticated user's id.
const UserIDKey contextKey = "user_id"

// TokenKey is the context key used to store the raw bearer token. The
// sync engine forwards it to the internship backend, which is the actual
// identity authority.
const TokenKey contextKey = "token"

// RequireAuth middleware checks for a valid bearer token in the Authorization header.
// It extracts the token, resolves the user id, and stores both in the request
// context for downstream handlers. Returns 401 Unauthorized if authentication fails.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			log.Println("Auth: No usable Authorization header present")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		userID, err := ResolveUser(token)
		if err != nil {
			log.Printf("Auth: Token resolution failed: %v", err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		ctx = context.WithValue(ctx, TokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerToken extracts the bearer token from the Authorization header.
// The Bearer scheme is case-insensitive per RFC 7235.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	fields := strings.Fields(authHeader)
	if len(fields) < 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(strings.Join(fields[1:], " "))
	if token == "" {
		return "", false
	}
	return token, true
}

// GetUserIDFromContext returns the user id from the context.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

// GetTokenFromContext returns the raw bearer token from the context.
func GetTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}

// ResolveUser maps a bearer token to a user id. Real validation happens
// at the internship backend, which rejects forwarded requests carrying a
// bad token with 401; this resolution only needs a stable session key.
// In test mode (MSGSYNC_TEST_MODE=true), tokens of the form
// "user:<id>" map to that id directly.
func ResolveUser(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("token is empty")
	}

	if os.Getenv("MSGSYNC_TEST_MODE") == "true" {
		if id, ok := strings.CutPrefix(token, "user:"); ok && id != "" {
			return id, nil
		}
	}

	// A fingerprint of the token is the per-user session key: one token,
	// one backend identity, one sync session. The raw token never ends
	// up in logs or store keys.
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8]), nil
}
