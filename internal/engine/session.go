package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/internhub/messaging/internal/backend"
	"github.com/internhub/messaging/internal/metrics"
	"github.com/internhub/messaging/internal/models"
	"github.com/internhub/messaging/internal/state"
)

// ErrSessionClosed is returned by session calls after the session's loop
// has terminated (shutdown or auth failure).
var ErrSessionClosed = errors.New("session closed")

// API is the slice of the backend client a session drives. The concrete
// implementation is backend.Client; tests substitute fakes.
type API interface {
	FetchMessages(ctx context.Context) ([]models.Message, error)
	SendMessage(ctx context.Context, draft models.Draft) (*models.Message, error)
	MarkRead(ctx context.Context, id int64) error
	DeleteMessage(ctx context.Context, id int64) error
	TypingStatus(ctx context.Context, userID string) (bool, error)
	UpdateTyping(ctx context.Context, recipientID string, isTyping bool) error
}

// Notifier pushes events to the user's open UI connections.
type Notifier interface {
	SendJSON(userID string, v any)
}

// Intervals bundles the cadence configuration for one session.
type Intervals struct {
	FastPoll   time.Duration // message poll while a conversation is open
	SlowPoll   time.Duration // message poll while idle
	TypingPoll time.Duration // remote typing poll while a conversation is open
	TypingIdle time.Duration // quiet window before typing flips back to idle
}

func (i Intervals) withDefaults() Intervals {
	if i.FastPoll <= 0 {
		i.FastPoll = 5 * time.Second
	}
	if i.SlowPoll <= 0 {
		i.SlowPoll = 30 * time.Second
	}
	if i.TypingPoll <= 0 {
		i.TypingPoll = 3 * time.Second
	}
	if i.TypingIdle <= 0 {
		i.TypingIdle = 4 * time.Second
	}
	return i
}

type fetchResult struct {
	messages []models.Message
	err      error
	started  time.Time
}

type typingResult struct {
	counterpartID string
	isTyping      bool
	err           error
}

// Session is one user's synchronization engine. A single goroutine owns
// every piece of mutable state: the confirmed snapshot, the derived
// conversations, the tracker, the outbox, and the typing machine. All
// access goes through commands executed on that goroutine, so snapshot
// replacement, notification evaluation, and reconciliation can never
// interleave.
type Session struct {
	userID    string
	api       API
	seenStore state.SeenStore
	notifier  Notifier
	intervals Intervals

	tracker *Tracker
	outbox  *Outbox
	typing  *TypingTracker

	commands      chan func()
	fetchResults  chan fetchResult
	typingResults chan typingResult

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Loop-owned state. Only the run goroutine (and commands it executes)
	// may touch anything below.
	confirmed      []models.Message
	conversations  []models.Conversation
	activeConv     string
	fetchInFlight  bool
	typingInFlight bool
	remoteTyping   map[string]bool
	pollTimer      *time.Timer
	typingTicker   *time.Ticker
	typingIdle     *time.Timer
}

// NewSession creates and starts a session for one user. The session polls
// until Close is called or the backend reports an auth failure.
func NewSession(userID string, api API, seenStore state.SeenStore, notifier Notifier, intervals Intervals) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		userID:        userID,
		api:           api,
		seenStore:     seenStore,
		notifier:      notifier,
		intervals:     intervals.withDefaults(),
		tracker:       NewTracker(),
		outbox:        NewOutbox(),
		commands:      make(chan func()),
		fetchResults:  make(chan fetchResult),
		typingResults: make(chan typingResult),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
		remoteTyping:  make(map[string]bool),
	}
	s.typing = NewTypingTracker(s.intervals.TypingIdle)

	go s.run()
	return s
}

// Close stops the session loop and every timer it owns, then waits for
// the loop to exit. Safe to call more than once.
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

// Done is closed once the session loop has exited, including the case
// where an auth failure terminated it from the inside.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) run() {
	defer close(s.done)

	s.restoreSeenState()

	s.pollTimer = time.NewTimer(s.intervals.SlowPoll)
	defer s.stopTimers()

	// Warm the session right away instead of waiting out the first tick.
	s.startFetch()

	for {
		var typingC <-chan time.Time
		if s.typingTicker != nil {
			typingC = s.typingTicker.C
		}
		var idleC <-chan time.Time
		if s.typingIdle != nil {
			idleC = s.typingIdle.C
		}

		select {
		case <-s.ctx.Done():
			return
		case fn := <-s.commands:
			fn()
		case <-s.pollTimer.C:
			s.startFetch()
			s.pollTimer.Reset(s.pollInterval())
		case res := <-s.fetchResults:
			if !s.applyFetch(res) {
				return
			}
		case res := <-s.typingResults:
			if !s.applyTypingResult(res) {
				return
			}
		case <-typingC:
			s.startTypingPoll()
		case now := <-idleC:
			s.onTypingIdle(now)
		}
	}
}

func (s *Session) restoreSeenState() {
	ids, found, err := s.seenStore.Load(s.ctx, s.userID)
	if err != nil {
		log.Printf("Session: failed to load seen state for user %s: %v", s.userID, err)
		return
	}
	if found {
		s.tracker.Restore(ids)
	}
}

func (s *Session) stopTimers() {
	if s.pollTimer != nil {
		s.pollTimer.Stop()
	}
	if s.typingTicker != nil {
		s.typingTicker.Stop()
		s.typingTicker = nil
	}
	if s.typingIdle != nil {
		s.typingIdle.Stop()
		s.typingIdle = nil
	}
}

func (s *Session) pollInterval() time.Duration {
	if s.activeConv != "" {
		return s.intervals.FastPoll
	}
	return s.intervals.SlowPoll
}

// resetPollTimer cancels the outstanding tick and reschedules with the
// given interval. Switching cadence must never wait out the old timer.
func (s *Session) resetPollTimer(interval time.Duration) {
	if !s.pollTimer.Stop() {
		select {
		case <-s.pollTimer.C:
		default:
		}
	}
	s.pollTimer.Reset(interval)
}

// startFetch kicks off a snapshot fetch unless one is already in flight.
// Single-flight: a tick that lands mid-fetch is skipped, not queued.
func (s *Session) startFetch() {
	if s.fetchInFlight {
		return
	}
	s.fetchInFlight = true
	started := time.Now()

	go func() {
		messages, err := s.api.FetchMessages(s.ctx)
		select {
		case s.fetchResults <- fetchResult{messages: messages, err: err, started: started}:
		case <-s.ctx.Done():
		}
	}()
}

// applyFetch accepts or discards one poll result. Snapshot replacement,
// outbox reconciliation, re-aggregation, and notification evaluation all
// happen here, synchronously, in this order. Returns false when the
// session must terminate.
func (s *Session) applyFetch(res fetchResult) bool {
	s.fetchInFlight = false

	if res.err != nil {
		if backend.IsAuthFailure(res.err) {
			log.Printf("Session: backend rejected credentials for user %s, stopping session", s.userID)
			s.cancel()
			return false
		}
		// Transient failure: keep the previous snapshot, do not touch the
		// tracker, wait for the next scheduled tick.
		metrics.PollFailures.Inc()
		log.Printf("Session: poll failed for user %s: %v", s.userID, res.err)
		return true
	}

	metrics.Polls.Inc()

	s.confirmed = res.messages
	s.outbox.Reconcile(s.confirmed, res.started)
	s.recomputeView()

	decision := s.tracker.Observe(UnreadMessageIDs(s.confirmed))
	if decision.Notify {
		metrics.Notifications.Inc()
		s.pushNotification(decision)
	}
	s.persistSeenState()

	return true
}

func (s *Session) recomputeView() {
	view := s.confirmed
	if pending := s.outbox.Pending(); len(pending) > 0 {
		view = make([]models.Message, 0, len(s.confirmed)+len(pending))
		view = append(view, s.confirmed...)
		view = append(view, pending...)
	}
	s.conversations = Aggregate(view)
}

func (s *Session) pushNotification(decision Decision) {
	if s.notifier == nil {
		return
	}
	s.notifier.SendJSON(s.userID, models.NotificationEvent{
		Type:        "new_messages",
		Count:       decision.Count,
		MessageIDs:  decision.NewIDs,
		UnreadTotal: TotalUnread(s.conversations),
	})
}

func (s *Session) persistSeenState() {
	if err := s.seenStore.Save(s.ctx, s.userID, s.tracker.SeenIDs()); err != nil {
		log.Printf("Session: failed to persist seen state for user %s: %v", s.userID, err)
	}
}

// do runs fn on the session loop and waits for it to finish.
func (s *Session) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		fn()
		close(finished)
	}

	select {
	case s.commands <- wrapped:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Conversations returns the current derived conversation list, newest
// activity first.
func (s *Session) Conversations(ctx context.Context) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := s.do(ctx, func() {
		conversations = s.conversations
	})
	return conversations, err
}

// Conversation returns the conversation with the given counterpart, if
// one exists in the current snapshot.
func (s *Session) Conversation(ctx context.Context, counterpartID string) (models.Conversation, bool, error) {
	var (
		conversation models.Conversation
		found        bool
	)
	err := s.do(ctx, func() {
		for i := range s.conversations {
			if s.conversations[i].CounterpartID == counterpartID {
				conversation = s.conversations[i]
				found = true
				return
			}
		}
	})
	return conversation, found, err
}

// UnreadTotal returns the total unread count across all conversations.
func (s *Session) UnreadTotal(ctx context.Context) (int, error) {
	var total int
	err := s.do(ctx, func() {
		total = TotalUnread(s.conversations)
	})
	return total, err
}

// RemoteTyping reports the last polled typing state for a counterpart.
func (s *Session) RemoteTyping(ctx context.Context, counterpartID string) (bool, error) {
	var typing bool
	err := s.do(ctx, func() {
		typing = s.remoteTyping[counterpartID]
	})
	return typing, err
}

// OpenConversation marks a conversation as active: polling switches to
// the fast cadence immediately, a fresh fetch is kicked off, and the
// remote typing poll starts.
func (s *Session) OpenConversation(ctx context.Context, counterpartID string) error {
	return s.do(ctx, func() {
		s.activeConv = counterpartID
		s.resetPollTimer(s.intervals.FastPoll)
		s.startFetch()

		if s.typingTicker != nil {
			s.typingTicker.Stop()
		}
		s.typingTicker = time.NewTicker(s.intervals.TypingPoll)
	})
}

// CloseConversation returns the session to the idle cadence and stops all
// conversation-scoped timers. If the user was mid-typing, a best-effort
// typing=false is sent so the counterpart's indicator clears.
func (s *Session) CloseConversation(ctx context.Context) error {
	return s.do(ctx, func() {
		counterpart := s.activeConv
		s.activeConv = ""
		s.resetPollTimer(s.intervals.SlowPoll)

		if s.typingTicker != nil {
			s.typingTicker.Stop()
			s.typingTicker = nil
		}
		if s.typingIdle != nil {
			s.typingIdle.Stop()
			s.typingIdle = nil
		}
		if s.typing.Reset() && counterpart != "" {
			s.sendTypingSignal(counterpart, false)
		}
	})
}

// ComposerInput records a keystroke in the active conversation's
// composer, driving the typing state machine.
func (s *Session) ComposerInput(ctx context.Context) error {
	return s.do(ctx, func() {
		if s.activeConv == "" {
			return
		}

		now := time.Now()
		if s.typing.Input(now) {
			s.sendTypingSignal(s.activeConv, true)
		}

		if s.typingIdle == nil {
			s.typingIdle = time.NewTimer(s.intervals.TypingIdle)
		} else {
			if !s.typingIdle.Stop() {
				select {
				case <-s.typingIdle.C:
				default:
				}
			}
			s.typingIdle.Reset(s.intervals.TypingIdle)
		}
	})
}

func (s *Session) onTypingIdle(now time.Time) {
	if s.typing.Expire(now) {
		if s.activeConv != "" {
			s.sendTypingSignal(s.activeConv, false)
		}
		s.typingIdle = nil
		return
	}
	// Input arrived after the timer was armed; re-arm for the remainder.
	if s.typing.Typing() && s.typingIdle != nil {
		s.typingIdle.Reset(s.typing.Remaining(now))
	} else {
		s.typingIdle = nil
	}
}

// sendTypingSignal pushes the local typing state, fire-and-forget.
// Typing presence is best-effort and never user-blocking.
func (s *Session) sendTypingSignal(counterpartID string, isTyping bool) {
	go func() {
		if err := s.api.UpdateTyping(s.ctx, counterpartID, isTyping); err != nil {
			log.Printf("Session: typing update for user %s failed: %v", s.userID, err)
		}
	}()
}

// startTypingPoll asks the backend whether the active counterpart is
// typing, single-flight like the message poll.
func (s *Session) startTypingPoll() {
	if s.activeConv == "" || s.typingInFlight {
		return
	}
	s.typingInFlight = true
	counterpart := s.activeConv

	go func() {
		isTyping, err := s.api.TypingStatus(s.ctx, counterpart)
		select {
		case s.typingResults <- typingResult{counterpartID: counterpart, isTyping: isTyping, err: err}:
		case <-s.ctx.Done():
		}
	}()
}

func (s *Session) applyTypingResult(res typingResult) bool {
	s.typingInFlight = false

	if res.err != nil {
		if backend.IsAuthFailure(res.err) {
			log.Printf("Session: backend rejected credentials for user %s, stopping session", s.userID)
			s.cancel()
			return false
		}
		// Best-effort: a failed typing poll is invisible to the user.
		return true
	}

	if s.remoteTyping[res.counterpartID] != res.isTyping {
		s.remoteTyping[res.counterpartID] = res.isTyping
		if s.notifier != nil {
			s.notifier.SendJSON(s.userID, models.TypingEvent{
				Type:          "typing",
				CounterpartID: res.counterpartID,
				IsTyping:      res.isTyping,
			})
		}
	}
	return true
}

// Send validates the draft, projects a provisional message into the
// conversation, and only then performs the network send. On failure the
// provisional message is rolled back and the original draft is returned
// with the error so the composer can be restored without retyping.
func (s *Session) Send(ctx context.Context, draft models.Draft) (models.Message, error) {
	if err := s.outbox.Validate(draft); err != nil {
		return models.Message{}, err
	}

	var staged models.Message
	if err := s.do(ctx, func() {
		staged = s.outbox.Stage(draft, time.Now())
		s.recomputeView()
	}); err != nil {
		return models.Message{}, err
	}

	created, err := s.api.SendMessage(ctx, draft)
	if err != nil {
		metrics.SendFailures.Inc()
		rollbackErr := s.do(context.Background(), func() {
			s.outbox.Fail(staged.LocalID)
			s.recomputeView()
		})
		if rollbackErr != nil {
			log.Printf("Session: failed to roll back optimistic message for user %s: %v", s.userID, rollbackErr)
		}
		return models.Message{}, fmt.Errorf("send to %s failed: %w", draft.RecipientID, err)
	}

	metrics.Sends.Inc()
	if err := s.do(context.Background(), func() {
		s.outbox.Settle(staged.LocalID, time.Now())
	}); err != nil {
		return *created, nil
	}

	return staged, nil
}

// MarkConversationRead acknowledges every unread received message in the
// conversation, one idempotent PUT per message, then mirrors the read
// state locally. ReadAt is only ever set through this explicit ack.
func (s *Session) MarkConversationRead(ctx context.Context, counterpartID string) error {
	var ids []int64
	if err := s.do(ctx, func() {
		for i := range s.confirmed {
			m := &s.confirmed[i]
			if m.CounterpartID == counterpartID && m.IsUnread() {
				ids = append(ids, m.ID)
			}
		}
	}); err != nil {
		return err
	}

	if len(ids) == 0 {
		return nil
	}

	for _, id := range ids {
		if err := s.api.MarkRead(ctx, id); err != nil {
			return fmt.Errorf("failed to mark message %d read: %w", id, err)
		}
	}

	acked := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		acked[id] = struct{}{}
	}

	return s.do(ctx, func() {
		now := time.Now()
		for i := range s.confirmed {
			if _, ok := acked[s.confirmed[i].ID]; ok && s.confirmed[i].ReadAt == nil {
				readAt := now
				s.confirmed[i].ReadAt = &readAt
			}
		}
		s.recomputeView()
	})
}

// DeleteConversation removes every message exchanged with the counterpart,
// one DELETE per message since the backend has no batch endpoint, then
// drops the group locally.
func (s *Session) DeleteConversation(ctx context.Context, counterpartID string) error {
	var ids []int64
	if err := s.do(ctx, func() {
		for i := range s.confirmed {
			if s.confirmed[i].CounterpartID == counterpartID {
				ids = append(ids, s.confirmed[i].ID)
			}
		}
	}); err != nil {
		return err
	}

	for _, id := range ids {
		if err := s.api.DeleteMessage(ctx, id); err != nil {
			return fmt.Errorf("failed to delete message %d: %w", id, err)
		}
	}

	return s.do(ctx, func() {
		kept := s.confirmed[:0]
		for _, m := range s.confirmed {
			if m.CounterpartID != counterpartID {
				kept = append(kept, m)
			}
		}
		s.confirmed = kept
		s.outbox.DropForCounterpart(counterpartID)
		if s.activeConv == counterpartID {
			s.activeConv = ""
		}
		delete(s.remoteTyping, counterpartID)
		s.recomputeView()
	})
}

// Refresh requests an immediate poll, subject to single-flight.
func (s *Session) Refresh(ctx context.Context) error {
	return s.do(ctx, func() {
		s.startFetch()
	})
}
