package engine

import "time"

// TypingTracker is the two-state debounce machine behind the "is typing"
// indicator. Composer input moves it to typing; a quiet period moves it
// back to idle. Each transition is worth one signal to the backend, which
// the session sends best-effort.
//
// The tracker holds no timer of its own. The session owns the timer and
// asks the tracker what each event means, which keeps the machine pure
// and trivially testable.
type TypingTracker struct {
	typing      bool
	lastInput   time.Time
	idleTimeout time.Duration
}

// NewTypingTracker returns an idle tracker with the given quiet window.
func NewTypingTracker(idleTimeout time.Duration) *TypingTracker {
	return &TypingTracker{idleTimeout: idleTimeout}
}

// Input records a composer keystroke. It returns true exactly when the
// state moved from idle to typing, i.e. when a typing=true signal is due.
// While already typing, input only pushes the idle deadline out.
func (t *TypingTracker) Input(now time.Time) bool {
	t.lastInput = now
	if t.typing {
		return false
	}
	t.typing = true
	return true
}

// Expire is called when the idle timer fires. It returns true exactly
// when the state moved from typing to idle, i.e. when a typing=false
// signal is due. Input that arrived after the timer was armed keeps the
// state typing and the caller should re-arm for the remaining window.
func (t *TypingTracker) Expire(now time.Time) bool {
	if !t.typing {
		return false
	}
	if now.Sub(t.lastInput) < t.idleTimeout {
		return false
	}
	t.typing = false
	return true
}

// Remaining returns how long until the idle deadline, for re-arming the
// timer after a spurious expiry.
func (t *TypingTracker) Remaining(now time.Time) time.Duration {
	deadline := t.lastInput.Add(t.idleTimeout)
	if remaining := deadline.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// Typing reports the current local state.
func (t *TypingTracker) Typing() bool {
	return t.typing
}

// Reset forces the machine back to idle without signaling, used when the
// conversation view goes away.
func (t *TypingTracker) Reset() bool {
	wasTyping := t.typing
	t.typing = false
	return wasTyping
}
