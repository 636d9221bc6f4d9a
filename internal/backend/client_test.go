package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/internhub/messaging/internal/models"
)

func TestFetchMessages(t *testing.T) {
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"id": 12, "direction": "received", "counterpart_id": "supervisor-7",
			 "counterpart_name": "Dana Reyes", "counterpart_role": "supervisor",
			 "subject": "Week 3", "body": "Report looks solid.",
			 "created_at": "2026-08-31T09:15:00Z"},
			{"id": 13, "direction": "sent", "counterpart_id": "supervisor-7",
			 "counterpart_name": "Dana Reyes", "counterpart_role": "supervisor",
			 "body": "Thanks, fixing the charts.",
			 "created_at": "2026-08-31T09:20:00Z", "read_at": "2026-08-31T09:21:00Z"}
		]`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-token")
	messages, err := client.FetchMessages(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "/messages", gotPath)

	require.Len(t, messages, 2)
	assert.Equal(t, int64(12), messages[0].ID)
	assert.Equal(t, models.DirectionReceived, messages[0].Direction)
	assert.True(t, messages[0].IsUnread())
	assert.Nil(t, messages[0].ReadAt)
	assert.Equal(t, models.DirectionSent, messages[1].Direction)
	assert.NotNil(t, messages[1].ReadAt)
}

func TestFetchMessagesEmptySnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-token")
	messages, err := client.FetchMessages(context.Background())
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestFetchMessagesUnauthorized(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(status)
			}))
			defer server.Close()

			client := NewClient(server.URL, "stale-token")
			_, err := client.FetchMessages(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnauthorized)
			assert.True(t, IsAuthFailure(err))
		})
	}
}

func TestFetchMessagesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-token")
	_, err := client.FetchMessages(context.Background())
	require.Error(t, err)
	assert.False(t, IsAuthFailure(err))

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.Status)
}

func TestFetchMessagesConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client := NewClient(server.URL, "secret-token")
	_, err := client.FetchMessages(context.Background())
	require.Error(t, err)
	assert.False(t, IsAuthFailure(err))
}

func TestSendMessageMultipart(t *testing.T) {
	var gotRecipient, gotSubject, gotBody, gotReplyTo, gotFilename, gotFileContent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/messages", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		gotRecipient = r.FormValue("recipient_id")
		gotSubject = r.FormValue("subject")
		gotBody = r.FormValue("message")
		gotReplyTo = r.FormValue("reply_to_id")

		file, header, err := r.FormFile("attachment")
		require.NoError(t, err)
		defer func() { _ = file.Close() }()
		gotFilename = header.Filename
		content, err := io.ReadAll(file)
		require.NoError(t, err)
		gotFileContent = string(content)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.Message{
			ID:            42,
			Direction:     models.DirectionSent,
			CounterpartID: gotRecipient,
			Subject:       gotSubject,
			Body:          gotBody,
			CreatedAt:     time.Now().UTC(),
		})
	}))
	defer server.Close()

	replyTo := int64(12)
	client := NewClient(server.URL, "secret-token")
	created, err := client.SendMessage(context.Background(), models.Draft{
		RecipientID:    "supervisor-7",
		Subject:        "Re: Week 3",
		Body:           "Updated report attached.",
		ReplyToID:      &replyTo,
		AttachmentName: "report.pdf",
		Attachment:     strings.NewReader("%PDF-1.4 fake"),
	})
	require.NoError(t, err)

	assert.Equal(t, "supervisor-7", gotRecipient)
	assert.Equal(t, "Re: Week 3", gotSubject)
	assert.Equal(t, "Updated report attached.", gotBody)
	assert.Equal(t, "12", gotReplyTo)
	assert.Equal(t, "report.pdf", gotFilename)
	assert.Equal(t, "%PDF-1.4 fake", gotFileContent)

	assert.Equal(t, int64(42), created.ID)
	assert.Equal(t, models.DirectionSent, created.Direction)
}

func TestSendMessageWithoutOptionalFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Empty(t, r.FormValue("reply_to_id"))
		_, _, err := r.FormFile("attachment")
		assert.Error(t, err, "no attachment part expected")

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": 43, "direction": "sent", "counterpart_id": "supervisor-7",
			"body": "plain", "created_at": "2026-08-31T10:00:00Z"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-token")
	created, err := client.SendMessage(context.Background(), models.Draft{
		RecipientID: "supervisor-7",
		Body:        "plain",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(43), created.ID)
}

func TestMarkReadAndDelete(t *testing.T) {
	type call struct {
		method string
		path   string
	}
	var calls []call
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, call{method: r.Method, path: r.URL.Path})
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-token")
	require.NoError(t, client.MarkRead(context.Background(), 12))
	require.NoError(t, client.DeleteMessage(context.Background(), 13))

	require.Len(t, calls, 2)
	assert.Equal(t, call{method: http.MethodPut, path: "/messages/12/read"}, calls[0])
	assert.Equal(t, call{method: http.MethodDelete, path: "/messages/13"}, calls[1])
}

func TestTypingStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/typing/status", r.URL.Path)
		assert.Equal(t, "supervisor-7", r.URL.Query().Get("user_id"))
		fmt.Fprint(w, `{"is_typing": true}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-token")
	typing, err := client.TypingStatus(context.Background(), "supervisor-7")
	require.NoError(t, err)
	assert.True(t, typing)
}

func TestUpdateTyping(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/typing/update", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-token")
	require.NoError(t, client.UpdateTyping(context.Background(), "supervisor-7", true))

	assert.Equal(t, "supervisor-7", got["recipient_id"])
	assert.Equal(t, true, got["is_typing"])
}

func TestBaseURLTrailingSlash(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "secret-token")
	_, err := client.FetchMessages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/messages", gotPath)
}
