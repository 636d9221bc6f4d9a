// Command spike is a connectivity check against a real internship backend.
// It fetches the message snapshot with a user's token, aggregates it, and
// prints the resulting conversations. Useful when pointing the sync
// service at a new backend deployment for the first time.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/internhub/messaging/internal/backend"
	"github.com/internhub/messaging/internal/engine"
	"github.com/internhub/messaging/internal/models"
)

func main() {
	log.Println("Starting backend connectivity check...")

	backendURL := os.Getenv("MSGSYNC_BACKEND_URL")
	token := os.Getenv("MSGSYNC_TOKEN")

	if backendURL == "" || token == "" {
		log.Fatal("Error: MSGSYNC_BACKEND_URL and MSGSYNC_TOKEN environment variables are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := backend.NewClient(backendURL, token)

	messages, err := client.FetchMessages(ctx)
	if err != nil {
		if backend.IsAuthFailure(err) {
			log.Fatalf("Backend rejected the token: %v", err)
		}
		log.Fatalf("Failed to fetch messages: %v", err)
	}

	log.Printf("Fetched %d messages", len(messages))

	conversations := engine.Aggregate(messages)
	log.Printf("Aggregated into %d conversations", len(conversations))

	for _, conv := range conversations {
		printConversation(conv)
	}

	if len(conversations) > 0 {
		checkTypingEndpoint(ctx, client, conversations[0].CounterpartID)
	}

	log.Println("Connectivity check finished")
}

func printConversation(conv models.Conversation) {
	fmt.Printf("  %s (%s, %s): %d messages, %d unread, last activity %s\n",
		conv.CounterpartName,
		conv.CounterpartID,
		conv.CounterpartRole,
		len(conv.Messages),
		conv.UnreadCount,
		conv.LastMessage.CreatedAt.Format(time.RFC3339),
	)
}

func checkTypingEndpoint(ctx context.Context, client *backend.Client, counterpartID string) {
	isTyping, err := client.TypingStatus(ctx, counterpartID)
	if err != nil {
		log.Printf("Typing status check failed (endpoint may be disabled): %v", err)
		return
	}
	log.Printf("Typing status for %s: %v", counterpartID, isTyping)
}
