// Command test-server runs a self-contained fake internship backend for
// local development. It serves the messaging endpoints the sync service
// polls, seeded with a believable conversation history, and simulates
// counterpart activity (incoming replies, typing bursts) so notification
// and typing flows can be exercised without a real deployment.
//
// Point the sync service at it with:
//
//	MSGSYNC_BACKEND_URL=http://localhost:9090 MSGSYNC_TEST_MODE=true go run ./cmd/server
package main

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/internhub/messaging/internal/models"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "9090"
	}

	store := newMessageStore()
	seedMessages(store)

	simCtx, stopSim := context.WithCancel(context.Background())
	defer stopSim()
	go simulateCounterpartActivity(simCtx, store)

	mux := http.NewServeMux()
	mux.HandleFunc("/messages", store.handleMessages)
	mux.HandleFunc("/messages/", store.handleMessage)
	mux.HandleFunc("/typing/status", store.handleTypingStatus)
	mux.HandleFunc("/typing/update", store.handleTypingUpdate)

	server := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down test backend")
		stopSim()
		_ = server.Shutdown(context.Background())
	}()

	log.Printf("Fake internship backend listening on :%s", port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Test backend failed: %v", err)
	}
}

// messageStore holds the fake backend's message list. One shared list for
// every token keeps the harness simple; the sync service treats whatever
// it fetches as the user's snapshot.
type messageStore struct {
	mu           sync.Mutex
	messages     []models.Message
	nextID       int64
	typingStates map[string]bool
}

func newMessageStore() *messageStore {
	return &messageStore{nextID: 1, typingStates: make(map[string]bool)}
}

func (s *messageStore) add(m models.Message) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.ID = s.nextID
	s.nextID++
	s.messages = append(s.messages, m)
	return m
}

func (s *messageStore) snapshot() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages...)
}

func (s *messageStore) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.snapshot())

	case http.MethodPost:
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, "Invalid multipart form", http.StatusBadRequest)
			return
		}

		msg := models.Message{
			Direction:       models.DirectionSent,
			CounterpartID:   r.FormValue("recipient_id"),
			CounterpartName: counterpartName(r.FormValue("recipient_id")),
			CounterpartRole: "supervisor",
			Subject:         r.FormValue("subject"),
			Body:            r.FormValue("message"),
			CreatedAt:       time.Now().UTC(),
		}
		if replyTo := r.FormValue("reply_to_id"); replyTo != "" {
			if id, err := strconv.ParseInt(replyTo, 10, 64); err == nil {
				msg.ReplyToID = &id
			}
		}
		if _, header, err := r.FormFile("attachment"); err == nil {
			msg.AttachmentRef = "upload/" + header.Filename
		}

		created := s.add(msg)
		log.Printf("Test backend: message %d sent to %s", created.ID, created.CounterpartID)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(created)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleMessage routes /messages/{id} (DELETE) and /messages/{id}/read (PUT).
func (s *messageStore) handleMessage(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/messages/")
	idPart, op, _ := strings.Cut(path, "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		http.Error(w, "Invalid message id", http.StatusBadRequest)
		return
	}

	switch {
	case op == "read" && r.Method == http.MethodPut:
		s.markRead(id)
		w.WriteHeader(http.StatusNoContent)
	case op == "" && r.Method == http.MethodDelete:
		s.delete(id)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *messageStore) markRead(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == id && s.messages[i].ReadAt == nil {
			now := time.Now().UTC()
			s.messages[i].ReadAt = &now
		}
	}
}

func (s *messageStore) delete(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	s.messages = kept
}

func (s *messageStore) handleTypingStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")

	s.mu.Lock()
	isTyping := s.typingStates[userID]
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"is_typing": isTyping})
}

func (s *messageStore) handleTypingUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		RecipientID string `json:"recipient_id"`
		IsTyping    bool   `json:"is_typing"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	log.Printf("Test backend: typing update toward %s: %v", payload.RecipientID, payload.IsTyping)
	w.WriteHeader(http.StatusNoContent)
}

// seedMessages loads a short believable history: a supervisor thread with
// unread messages and an older coordinator thread, fully read.
func seedMessages(store *messageStore) {
	base := time.Now().UTC().Add(-48 * time.Hour)
	read := func(offset time.Duration) *time.Time {
		ts := base.Add(offset)
		return &ts
	}

	store.add(models.Message{
		Direction:       models.DirectionReceived,
		CounterpartID:   "supervisor-7",
		CounterpartName: "Dana Reyes",
		CounterpartRole: "supervisor",
		Subject:         "Week 3 check-in",
		Body:            "How is the data pipeline task going? Let's sync before Friday.",
		CreatedAt:       base,
		ReadAt:          read(10 * time.Minute),
	})
	store.add(models.Message{
		Direction:       models.DirectionSent,
		CounterpartID:   "supervisor-7",
		CounterpartName: "Dana Reyes",
		CounterpartRole: "supervisor",
		Body:            "Going well, the ingestion step is done. Friday morning works.",
		CreatedAt:       base.Add(30 * time.Minute),
	})
	store.add(models.Message{
		Direction:       models.DirectionReceived,
		CounterpartID:   "supervisor-7",
		CounterpartName: "Dana Reyes",
		CounterpartRole: "supervisor",
		Body:            "Great. Bring the throughput numbers if you have them.",
		CreatedAt:       base.Add(26 * time.Hour),
	})
	store.add(models.Message{
		Direction:       models.DirectionReceived,
		CounterpartID:   "coord-2",
		CounterpartName: "Priya Nair",
		CounterpartRole: "coordinator",
		Subject:         "Mid-term evaluation",
		Body:            "Reminder: your mid-term self-evaluation form is due next week.",
		CreatedAt:       base.Add(2 * time.Hour),
		ReadAt:          read(3 * time.Hour),
	})

	log.Printf("Test backend: seeded %d messages", len(store.snapshot()))
}

// simulateCounterpartActivity periodically injects a received message and
// toggles the supervisor's typing state, so the sync service has real
// change to detect.
func simulateCounterpartActivity(ctx context.Context, store *messageStore) {
	replies := []string{
		"Quick follow-up: can you also cover the retry behavior?",
		"The review board moved to Thursday, does that still work?",
		"Saw your last commit, nice cleanup.",
		"One more thing for the agenda: deployment checklist.",
	}

	ticker := time.NewTicker(45 * time.Second)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Typing burst, then the message lands.
		store.mu.Lock()
		store.typingStates["supervisor-7"] = true
		store.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(3+rand.Intn(5)) * time.Second):
		}

		store.mu.Lock()
		store.typingStates["supervisor-7"] = false
		store.mu.Unlock()

		msg := store.add(models.Message{
			Direction:       models.DirectionReceived,
			CounterpartID:   "supervisor-7",
			CounterpartName: "Dana Reyes",
			CounterpartRole: "supervisor",
			Body:            replies[i%len(replies)],
			CreatedAt:       time.Now().UTC(),
		})
		log.Printf("Test backend: simulated incoming message %d", msg.ID)
	}
}

func counterpartName(id string) string {
	switch id {
	case "supervisor-7":
		return "Dana Reyes"
	case "coord-2":
		return "Priya Nair"
	default:
		return id
	}
}
