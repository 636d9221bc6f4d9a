package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/internhub/messaging/internal/backend"
	"github.com/internhub/messaging/internal/state"
	"github.com/internhub/messaging/internal/testutil"
)

func newTestManager(t *testing.T) (*Manager, *testutil.FakeAPI) {
	t.Helper()

	fake := testutil.NewFakeAPI()
	factory := func(string) API { return fake }
	manager := NewManager(factory, state.NewMemoryStore(), &captureNotifier{}, testIntervals())
	t.Cleanup(manager.Close)
	return manager, fake
}

func TestManagerReusesSession(t *testing.T) {
	manager, _ := newTestManager(t)

	first, err := manager.Session("user-1", "token-a")
	require.NoError(t, err)
	second, err := manager.Session("user-1", "token-a")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, manager.ActiveSessions())
}

func TestManagerSeparateSessionsPerUser(t *testing.T) {
	manager, _ := newTestManager(t)

	first, err := manager.Session("user-1", "token-a")
	require.NoError(t, err)
	second, err := manager.Session("user-2", "token-b")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, 2, manager.ActiveSessions())
}

func TestManagerStopTearsDown(t *testing.T) {
	manager, _ := newTestManager(t)

	session, err := manager.Session("user-1", "token-a")
	require.NoError(t, err)

	manager.Stop("user-1")
	assert.Equal(t, 0, manager.ActiveSessions())

	select {
	case <-session.Done():
	case <-time.After(time.Second):
		t.Fatal("stopped session did not terminate")
	}
}

func TestManagerReplacesTerminatedSession(t *testing.T) {
	manager, fake := newTestManager(t)

	fake.SetFetchError(backend.ErrUnauthorized)
	first, err := manager.Session("user-1", "stale-token")
	require.NoError(t, err)

	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not terminate on auth failure")
	}

	// Fresh credentials get a fresh session, not the dead one.
	fake.SetFetchError(nil)
	second, err := manager.Session("user-1", "fresh-token")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	waitForConversations(t, second, 0)
}

func TestManagerCloseRefusesNewSessions(t *testing.T) {
	fake := testutil.NewFakeAPI()
	factory := func(string) API { return fake }
	manager := NewManager(factory, state.NewMemoryStore(), &captureNotifier{}, testIntervals())

	_, err := manager.Session("user-1", "token-a")
	require.NoError(t, err)

	manager.Close()
	assert.Equal(t, 0, manager.ActiveSessions())

	_, err = manager.Session("user-2", "token-b")
	assert.ErrorIs(t, err, ErrSessionClosed)
}
