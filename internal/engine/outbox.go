package engine

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/internhub/messaging/internal/models"
)

// Validation failures are rejected before any network call is attempted.
var (
	ErrNoRecipient = errors.New("draft has no recipient")
	ErrEmptyBody   = errors.New("draft body is empty")
)

// reconcileSkew pads the round-trip window when matching an optimistic
// message against a server-confirmed one, absorbing clock drift between
// this host and the backend.
const reconcileSkew = 5 * time.Second

// pendingSend is an optimistic message plus the timing needed to match it
// against a later snapshot. The backend does not echo client-chosen ids,
// so matching is a heuristic over counterpart, body, and creation time.
type pendingSend struct {
	msg       models.Message
	draft     models.Draft
	stagedAt  time.Time
	settledAt time.Time // zero until the send request returned
}

// Outbox owns every optimistic message that no snapshot has confirmed
// yet. It is only ever touched from the session loop.
type Outbox struct {
	pending    []pendingSend
	nextTempID int64
}

// NewOutbox returns an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{nextTempID: -1}
}

// Validate rejects drafts that must never reach the network.
func (o *Outbox) Validate(draft models.Draft) error {
	if strings.TrimSpace(draft.RecipientID) == "" {
		return ErrNoRecipient
	}
	if strings.TrimSpace(draft.Body) == "" {
		return ErrEmptyBody
	}
	return nil
}

// Stage projects a draft into a provisional message with a temporary
// negative id. The message is visible to the UI immediately, before the
// backend has confirmed anything.
func (o *Outbox) Stage(draft models.Draft, now time.Time) models.Message {
	msg := models.Message{
		ID:            o.nextTempID,
		LocalID:       uuid.NewString(),
		Direction:     models.DirectionSent,
		CounterpartID: draft.RecipientID,
		Subject:       draft.Subject,
		Body:          draft.Body,
		ReplyToID:     draft.ReplyToID,
		CreatedAt:     now,
		Pending:       true,
	}
	o.nextTempID--

	o.pending = append(o.pending, pendingSend{msg: msg, draft: draft, stagedAt: now})
	return msg
}

// Settle records that the send request for the given local id returned
// successfully, closing the round-trip window used for matching.
func (o *Outbox) Settle(localID string, now time.Time) {
	for i := range o.pending {
		if o.pending[i].msg.LocalID == localID {
			o.pending[i].settledAt = now
			return
		}
	}
}

// Fail removes a provisional message whose send request failed and hands
// back the original draft so the composer can be restored. The user must
// never retype a failed message.
func (o *Outbox) Fail(localID string) (models.Draft, bool) {
	for i := range o.pending {
		if o.pending[i].msg.LocalID == localID {
			draft := o.pending[i].draft
			o.pending = append(o.pending[:i], o.pending[i+1:]...)
			return draft, true
		}
	}
	return models.Draft{}, false
}

// Reconcile is called strictly after a snapshot replacement. Pending
// entries matched by a confirmed record in the snapshot are dropped; so
// are stale entries the snapshot should have contained (full replacement
// wins over optimistic projections). Entries staged after the fetch began
// survive so in-flight sends stay visible. Idempotent: running it again
// over the same snapshot changes nothing.
func (o *Outbox) Reconcile(snapshot []models.Message, fetchStarted time.Time) {
	kept := o.pending[:0]
	for _, p := range o.pending {
		switch {
		case matchesConfirmed(p, snapshot):
			// Confirmed record is in the snapshot; the projection is done.
		case p.stagedAt.After(fetchStarted):
			kept = append(kept, p)
		default:
			// Heuristic miss on an entry the snapshot supersedes.
			log.Printf("Outbox: dropping unconfirmed optimistic message to %s staged at %s",
				p.msg.CounterpartID, p.stagedAt.Format(time.RFC3339))
		}
	}
	o.pending = kept
}

// DropForCounterpart discards pending entries addressed to the given
// counterpart, used when the whole conversation is deleted.
func (o *Outbox) DropForCounterpart(counterpartID string) {
	kept := o.pending[:0]
	for _, p := range o.pending {
		if p.msg.CounterpartID != counterpartID {
			kept = append(kept, p)
		}
	}
	o.pending = kept
}

// Pending returns the provisional messages still awaiting confirmation.
func (o *Outbox) Pending() []models.Message {
	msgs := make([]models.Message, 0, len(o.pending))
	for _, p := range o.pending {
		msgs = append(msgs, p.msg)
	}
	return msgs
}

// matchesConfirmed applies the correlation heuristic: same counterpart,
// direction sent, identical body, created within the send's round-trip
// window plus skew.
func matchesConfirmed(p pendingSend, snapshot []models.Message) bool {
	windowStart := p.stagedAt.Add(-reconcileSkew)
	windowEnd := p.settledAt
	if windowEnd.IsZero() {
		windowEnd = p.stagedAt
	}
	windowEnd = windowEnd.Add(reconcileSkew)

	for i := range snapshot {
		msg := &snapshot[i]
		if msg.Direction != models.DirectionSent || msg.CounterpartID != p.msg.CounterpartID {
			continue
		}
		if msg.Body != p.msg.Body {
			continue
		}
		if msg.CreatedAt.Before(windowStart) || msg.CreatedAt.After(windowEnd) {
			continue
		}
		return true
	}
	return false
}
