package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/internhub/messaging/internal/models"
)

// Client talks to the internship backend's messaging API on behalf of a
// single user. The bearer token is the one the UI presented; the backend
// is the identity authority.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a backend API client for one user session.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: http.DefaultClient,
	}
}

// FetchMessages returns the full flat message snapshot for the current
// user. The result replaces any previous snapshot wholesale.
func (c *Client) FetchMessages(ctx context.Context) ([]models.Message, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/messages", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp, http.MethodGet, "/messages"); err != nil {
		return nil, err
	}

	var messages []models.Message
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, fmt.Errorf("failed to decode message snapshot: %w", err)
	}

	return messages, nil
}

// SendMessage posts a draft as a multipart form and returns the created
// record. An optional attachment is copied into the form as-is.
func (c *Client) SendMessage(ctx context.Context, draft models.Draft) (*models.Message, error) {
	body := &strings.Builder{}
	writer := multipart.NewWriter(body)

	fields := map[string]string{
		"recipient_id": draft.RecipientID,
		"subject":      draft.Subject,
		"message":      draft.Body,
	}
	if draft.ReplyToID != nil {
		fields["reply_to_id"] = strconv.FormatInt(*draft.ReplyToID, 10)
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", name, err)
		}
	}

	if draft.Attachment != nil {
		part, err := writer.CreateFormFile("attachment", draft.AttachmentName)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment part: %w", err)
		}
		if _, err := io.Copy(part, draft.Attachment); err != nil {
			return nil, fmt.Errorf("failed to copy attachment: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/messages", strings.NewReader(body.String()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp, http.MethodPost, "/messages"); err != nil {
		return nil, err
	}

	var created models.Message
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("failed to decode created message: %w", err)
	}

	return &created, nil
}

// MarkRead marks a received message as read. Idempotent on the backend.
func (c *Client) MarkRead(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/messages/%d/read", id)
	return c.doSimple(ctx, http.MethodPut, path)
}

// DeleteMessage removes a single message. Conversation deletion issues
// this once per message; there is no batch endpoint.
func (c *Client) DeleteMessage(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/messages/%d", id)
	return c.doSimple(ctx, http.MethodDelete, path)
}

// TypingStatus asks whether the given counterpart is currently typing.
func (c *Client) TypingStatus(ctx context.Context, userID string) (bool, error) {
	path := "/typing/status?user_id=" + url.QueryEscape(userID)

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to fetch typing status: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp, http.MethodGet, "/typing/status"); err != nil {
		return false, err
	}

	var status struct {
		IsTyping bool `json:"is_typing"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false, fmt.Errorf("failed to decode typing status: %w", err)
	}

	return status.IsTyping, nil
}

// UpdateTyping pushes the user's own typing state toward a recipient.
func (c *Client) UpdateTyping(ctx context.Context, recipientID string, isTyping bool) error {
	payload, err := json.Marshal(map[string]any{
		"recipient_id": recipientID,
		"is_typing":    isTyping,
	})
	if err != nil {
		return fmt.Errorf("failed to encode typing update: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/typing/update", strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to push typing update: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	return checkStatus(resp, http.MethodPost, "/typing/update")
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s %s request: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// doSimple issues a body-less request and discards any response body.
func (c *Client) doSimple(ctx context.Context, method, path string) error {
	req, err := c.newRequest(ctx, method, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return checkStatus(resp, method, path)
}

func checkStatus(resp *http.Response, method, path string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	default:
		return &StatusError{Status: resp.StatusCode, Method: method, Path: path}
	}
}
