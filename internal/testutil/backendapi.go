package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/internhub/messaging/internal/models"
)

// FakeAPI is an in-memory stand-in for the internship backend's
// messaging API. Tests script its behavior and inspect what the engine
// did with it. Safe for concurrent use; the engine calls it from
// several goroutines.
type FakeAPI struct {
	mu sync.Mutex

	messages []models.Message
	nextID   int64

	fetchErr   error
	sendErr    error
	fetchBlock chan struct{} // when set, FetchMessages waits on it

	fetchCalls    int
	inFlight      int
	maxInFlight   int
	markReadIDs   []int64
	deleteIDs     []int64
	typingStatus  bool
	typingUpdates []TypingUpdate
}

// TypingUpdate records one UpdateTyping call.
type TypingUpdate struct {
	RecipientID string
	IsTyping    bool
}

// NewFakeAPI returns an empty fake backend.
func NewFakeAPI() *FakeAPI {
	return &FakeAPI{nextID: 1}
}

// SetMessages replaces the snapshot the next fetch returns.
func (f *FakeAPI) SetMessages(messages []models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append([]models.Message(nil), messages...)
}

// AddReceived appends a received message from the given counterpart and
// returns it.
func (f *FakeAPI) AddReceived(counterpartID, body string, createdAt time.Time) models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg := models.Message{
		ID:            f.nextID,
		Direction:     models.DirectionReceived,
		CounterpartID: counterpartID,
		Body:          body,
		CreatedAt:     createdAt,
	}
	f.nextID++
	f.messages = append(f.messages, msg)
	return msg
}

// SetFetchError makes every subsequent fetch fail with err (nil to heal).
func (f *FakeAPI) SetFetchError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

// SetSendError makes every subsequent send fail with err (nil to heal).
func (f *FakeAPI) SetSendError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

// BlockFetches makes fetches park until the returned release function is
// called, for exercising the single-flight property.
func (f *FakeAPI) BlockFetches() (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.fetchBlock = ch
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.fetchBlock = nil
			f.mu.Unlock()
			close(ch)
		})
	}
}

// FetchCalls returns how many fetches were started.
func (f *FakeAPI) FetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

// MaxInFlight returns the highest number of concurrently running fetches
// observed, which single-flight polling must keep at one.
func (f *FakeAPI) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// MarkReadIDs returns every id passed to MarkRead so far.
func (f *FakeAPI) MarkReadIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.markReadIDs...)
}

// DeleteIDs returns every id passed to DeleteMessage so far.
func (f *FakeAPI) DeleteIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.deleteIDs...)
}

// SetTypingStatus sets what TypingStatus reports.
func (f *FakeAPI) SetTypingStatus(isTyping bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typingStatus = isTyping
}

// TypingUpdates returns every UpdateTyping call so far.
func (f *FakeAPI) TypingUpdates() []TypingUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]TypingUpdate(nil), f.typingUpdates...)
}

// FetchMessages implements the engine's API interface.
func (f *FakeAPI) FetchMessages(ctx context.Context) ([]models.Message, error) {
	f.mu.Lock()
	f.fetchCalls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	block := f.fetchBlock
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--

	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]models.Message(nil), f.messages...), nil
}

// SendMessage implements the engine's API interface. On success it also
// appends a confirmed record so the next snapshot contains it.
func (f *FakeAPI) SendMessage(_ context.Context, draft models.Draft) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendErr != nil {
		return nil, f.sendErr
	}

	msg := models.Message{
		ID:            f.nextID,
		Direction:     models.DirectionSent,
		CounterpartID: draft.RecipientID,
		Subject:       draft.Subject,
		Body:          draft.Body,
		ReplyToID:     draft.ReplyToID,
		CreatedAt:     time.Now(),
	}
	f.nextID++
	f.messages = append(f.messages, msg)
	return &msg, nil
}

// MarkRead implements the engine's API interface.
func (f *FakeAPI) MarkRead(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.markReadIDs = append(f.markReadIDs, id)
	now := time.Now()
	for i := range f.messages {
		if f.messages[i].ID == id && f.messages[i].ReadAt == nil {
			readAt := now
			f.messages[i].ReadAt = &readAt
		}
	}
	return nil
}

// DeleteMessage implements the engine's API interface.
func (f *FakeAPI) DeleteMessage(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleteIDs = append(f.deleteIDs, id)
	kept := f.messages[:0]
	for _, m := range f.messages {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	f.messages = kept
	return nil
}

// TypingStatus implements the engine's API interface.
func (f *FakeAPI) TypingStatus(_ context.Context, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.typingStatus, nil
}

// UpdateTyping implements the engine's API interface.
func (f *FakeAPI) UpdateTyping(_ context.Context, recipientID string, isTyping bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typingUpdates = append(f.typingUpdates, TypingUpdate{RecipientID: recipientID, IsTyping: isTyping})
	return nil
}
