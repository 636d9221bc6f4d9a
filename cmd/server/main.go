package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/internhub/messaging/internal/api"
	"github.com/internhub/messaging/internal/auth"
	"github.com/internhub/messaging/internal/backend"
	"github.com/internhub/messaging/internal/config"
	"github.com/internhub/messaging/internal/db"
	"github.com/internhub/messaging/internal/engine"
	"github.com/internhub/messaging/internal/metrics"
	"github.com/internhub/messaging/internal/state"
	ws "github.com/internhub/messaging/internal/websocket"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	seenStore, err := newSeenStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open seen-state store: %v", err)
	}
	defer func() { _ = seenStore.Close() }()

	log.Printf("Seen-state store ready (backend: %s)", cfg.StateBackend)

	hub := ws.NewHub(cfg.MaxWSConnections)
	manager := engine.NewManager(
		func(token string) engine.API {
			return backend.NewClient(cfg.BackendBaseURL, token)
		},
		seenStore,
		hub,
		engine.Intervals{
			FastPoll:   cfg.FastPollInterval,
			SlowPoll:   cfg.SlowPollInterval,
			TypingPoll: cfg.TypingPollInterval,
			TypingIdle: cfg.TypingIdleTimeout,
		},
	)
	defer manager.Close()

	server := NewServer(manager, hub)

	address := ":" + cfg.Port
	log.Printf("InternHub messaging sync server starting on %s (environment: %s)", address, cfg.Environment)

	httpServer := &http.Server{Addr: address, Handler: server}

	// Stop sessions cleanly on SIGINT/SIGTERM so timers and in-flight
	// polls do not outlive the process's useful life.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		log.Printf("Shutting down")
		_ = httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// newSeenStore opens the configured seen-state backend.
func newSeenStore(cfg *config.Config) (state.SeenStore, error) {
	switch cfg.StateBackend {
	case "memory":
		return state.NewMemoryStore(), nil
	case "pebble":
		return state.OpenPebble(cfg.PebblePath)
	case "postgres":
		ctx := context.Background()
		pool, err := db.NewConnection(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureSchema(ctx, pool); err != nil {
			db.CloseConnection(pool)
			return nil, err
		}
		return db.NewSeenStore(pool), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
}

// NewServer creates and returns the HTTP handler for the messaging sync API.
func NewServer(manager *engine.Manager, hub *ws.Hub) http.Handler {
	conversationsHandler := api.NewConversationsHandler(manager)
	messagesHandler := api.NewMessagesHandler(manager)
	typingHandler := api.NewTypingHandler(manager)
	wsHandler := api.NewWebSocketHandler(manager, hub)

	mux := http.NewServeMux()

	mux.HandleFunc("/", handleRoot)
	mux.Handle("/metrics", metrics.Handler())

	mux.Handle("/api/v1/conversations", auth.RequireAuth(http.HandlerFunc(conversationsHandler.GetConversations)))
	// "close" is a reserved path segment: the exact match wins over the
	// subtree below, so no counterpart id may be the literal "close".
	// Backend user ids are role-prefixed numerics, which never collide.
	mux.Handle("/api/v1/conversations/close", auth.RequireAuth(http.HandlerFunc(conversationsHandler.CloseConversation)))
	mux.Handle("/api/v1/conversations/", auth.RequireAuth(http.HandlerFunc(conversationsHandler.HandleConversation)))
	mux.Handle("/api/v1/messages", auth.RequireAuth(http.HandlerFunc(messagesHandler.SendMessage)))
	mux.Handle("/api/v1/typing", auth.RequireAuth(http.HandlerFunc(typingHandler.ComposerInput)))
	mux.Handle("/api/v1/unread", auth.RequireAuth(http.HandlerFunc(typingHandler.GetUnread)))
	// WebSocket handler handles its own authentication via query parameter
	// (since browsers can't set headers on WebSocket connections).
	mux.Handle("/api/v1/ws", http.HandlerFunc(wsHandler.Handle))

	return mux
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "InternHub messaging sync API is running")
}
