// ABOUTME: Tests for the SQLite store
// ABOUTME: Covers user/agent CRUD, ownership checks, and heartbeat updates

package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUser(t *testing.T, s *SQLiteStore, username string) *User {
	t.Helper()
	u := &User{ID: uuid.New().String(), Username: username, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateUser(t.Context(), u))
	return u
}

func seedAgent(t *testing.T, s *SQLiteStore, userID, name string) *Agent {
	t.Helper()
	a := &Agent{ID: uuid.New().String(), UserID: userID, Name: name, Status: "running", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateAgent(t.Context(), a))
	return a
}

func TestSQLiteStore_UserRoundTrip(t *testing.T) {
	s := newTestStore(t)
	u := seedUser(t, s, "alice")

	got, err := s.GetUser(t.Context(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	byName, err := s.GetUserByUsername(t.Context(), "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)
}

func TestSQLiteStore_DuplicateUsername(t *testing.T) {
	s := newTestStore(t)
	seedUser(t, s, "alice")

	err := s.CreateUser(t.Context(), &User{ID: uuid.New().String(), Username: "alice", CreatedAt: time.Now().UTC()})
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestSQLiteStore_GetUserNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetUser(t.Context(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_CountUsers(t *testing.T) {
	s := newTestStore(t)

	count, err := s.CountUsers(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	seedUser(t, s, "alice")
	seedUser(t, s, "bob")

	count, err = s.CountUsers(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSQLiteStore_GetAgentEnforcesOwnership(t *testing.T) {
	s := newTestStore(t)
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	agent := seedAgent(t, s, alice.ID, "alice-desktop")

	got, err := s.GetAgent(t.Context(), agent.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice-desktop", got.Name)

	// A foreign agent and a missing agent look identical to the caller.
	_, err = s.GetAgent(t.Context(), agent.ID, bob.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetAgent(t.Context(), "missing", alice.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListAgentsForUser(t *testing.T) {
	s := newTestStore(t)
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	seedAgent(t, s, alice.ID, "one")
	seedAgent(t, s, alice.ID, "two")
	seedAgent(t, s, bob.ID, "other")

	agents, err := s.ListAgentsForUser(t.Context(), alice.ID)
	require.NoError(t, err)
	assert.Len(t, agents, 2)
}

func TestSQLiteStore_UpdateAgentStatus(t *testing.T) {
	s := newTestStore(t)
	alice := seedUser(t, s, "alice")
	agent := seedAgent(t, s, alice.ID, "desk")

	require.NoError(t, s.UpdateAgentStatus(t.Context(), agent.ID, "stopped"))

	got, err := s.GetAgent(t.Context(), agent.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "stopped", got.Status)

	assert.ErrorIs(t, s.UpdateAgentStatus(t.Context(), "missing", "stopped"), ErrNotFound)
}

func TestSQLiteStore_UpdateAgentHeartbeat(t *testing.T) {
	s := newTestStore(t)
	alice := seedUser(t, s, "alice")
	agent := seedAgent(t, s, alice.ID, "desk")

	got, err := s.GetAgent(t.Context(), agent.ID, alice.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastHeartbeat)

	require.NoError(t, s.UpdateAgentHeartbeat(t.Context(), agent.ID))

	got, err = s.GetAgent(t.Context(), agent.ID, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastHeartbeat)
	assert.WithinDuration(t, time.Now().UTC(), *got.LastHeartbeat, 5*time.Second)

	assert.ErrorIs(t, s.UpdateAgentHeartbeat(t.Context(), "missing"), ErrNotFound)
}
