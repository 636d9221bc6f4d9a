package engine

import (
	"log"
	"sync"

	"github.com/internhub/messaging/internal/state"
)

// APIFactory builds a backend API client bound to one user's bearer
// token. The manager calls it when a session is first created.
type APIFactory func(token string) API

// Manager owns one Session per authenticated user. Sessions are created
// lazily on first touch and torn down when the last UI connection goes
// away or the whole service shuts down.
type Manager struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	newAPI    APIFactory
	seenStore state.SeenStore
	notifier  Notifier
	intervals Intervals
	closed    bool
}

// NewManager creates a session manager. All sessions share the seen-state
// store and the notifier.
func NewManager(newAPI APIFactory, seenStore state.SeenStore, notifier Notifier, intervals Intervals) *Manager {
	return &Manager{
		sessions:  make(map[string]*Session),
		newAPI:    newAPI,
		seenStore: seenStore,
		notifier:  notifier,
		intervals: intervals,
	}
}

// Session returns the user's running session, creating one if needed. A
// session that terminated itself (auth failure) is replaced so the next
// login with fresh credentials starts clean.
func (m *Manager) Session(userID, token string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrSessionClosed
	}

	if existing, ok := m.sessions[userID]; ok {
		select {
		case <-existing.Done():
			log.Printf("Manager: replacing terminated session for user %s", userID)
			delete(m.sessions, userID)
		default:
			return existing, nil
		}
	}

	session := NewSession(userID, m.newAPI(token), m.seenStore, m.notifier, m.intervals)
	m.sessions[userID] = session
	return session, nil
}

// Stop tears down the user's session, if one is running. Called when the
// user's last UI connection closes so no periodic work outlives the view.
func (m *Manager) Stop(userID string) {
	m.mu.Lock()
	session, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
	}
	m.mu.Unlock()

	if ok {
		session.Close()
	}
}

// ActiveSessions returns the number of running sessions.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops every session and refuses new ones.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
