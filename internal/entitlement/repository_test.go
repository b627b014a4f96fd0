package entitlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRepository_provider_selection(t *testing.T) {
	repo := NewSessionRepository()

	require.ErrorIs(t, repo.SelectProvider("demo", "acme"), ErrNoSession)

	repo.Open("demo")
	require.NoError(t, repo.Authenticate("demo", "basic"))
	s, ok := repo.Get("demo")
	require.True(t, ok)
	assert.True(t, s.Authenticated)
	assert.Equal(t, "basic", s.ProviderID)
	assert.False(t, s.AuthenticatedAt.IsZero())
	assert.Equal(t, 1, repo.AuthenticatedCount())

	// Opening again keeps the existing session.
	assert.True(t, repo.Open("demo").Authenticated)
}

func TestSessionRepository_interactive_login(t *testing.T) {
	repo := NewSessionRepository()
	repo.Open("demo")
	require.NoError(t, repo.SelectProvider("demo", "acme"))
	login, err := repo.BeginLogin("demo", "acme")
	require.NoError(t, err)
	require.NotEmpty(t, login.State)

	t.Run("finalize_before_completion", func(t *testing.T) {
		_, err := repo.FinalizeLogin("demo")
		assert.ErrorIs(t, err, ErrLoginPending)
	})

	t.Run("unknown_state", func(t *testing.T) {
		_, err := repo.CompleteLogin("nope")
		assert.ErrorIs(t, err, ErrUnknownLogin)
	})

	t.Run("complete_then_finalize", func(t *testing.T) {
		got, err := repo.CompleteLogin(login.State)
		require.NoError(t, err)
		assert.True(t, got.Completed)
		assert.Equal(t, "acme", got.ProviderID)

		pid, err := repo.FinalizeLogin("demo")
		require.NoError(t, err)
		assert.Equal(t, "acme", pid)

		s, _ := repo.Get("demo")
		assert.True(t, s.Authenticated)
		assert.Empty(t, s.Logins)
	})

	t.Run("finalized_state_is_forgotten", func(t *testing.T) {
		_, err := repo.CompleteLogin(login.State)
		assert.ErrorIs(t, err, ErrUnknownLogin)
	})
}

func TestSessionRepository_cancel_discards_logins(t *testing.T) {
	repo := NewSessionRepository()
	repo.Open("demo")
	require.NoError(t, repo.SelectProvider("demo", "acme"))
	login, err := repo.BeginLogin("demo", "acme")
	require.NoError(t, err)

	require.NoError(t, repo.SelectProvider("demo", ""))
	_, err = repo.CompleteLogin(login.State)
	assert.ErrorIs(t, err, ErrUnknownLogin)
}

func TestSessionRepository_logout(t *testing.T) {
	repo := NewSessionRepository()
	repo.Open("demo")
	require.NoError(t, repo.Authenticate("demo", "basic"))

	require.NoError(t, repo.Logout("demo"))
	s, _ := repo.Get("demo")
	assert.False(t, s.Authenticated)
	assert.Empty(t, s.ProviderID)
	assert.Equal(t, 0, repo.AuthenticatedCount())
	assert.ErrorIs(t, repo.Logout("other"), ErrNoSession)
}

func TestSessionRepository_Get_returns_copy(t *testing.T) {
	repo := NewSessionRepository()
	repo.Open("demo")
	require.NoError(t, repo.SelectProvider("demo", "acme"))
	login, err := repo.BeginLogin("demo", "acme")
	require.NoError(t, err)

	s, _ := repo.Get("demo")
	s.Logins[login.State] = Login{State: login.State, ProviderID: "acme", Completed: true}
	_, err = repo.FinalizeLogin("demo")
	assert.ErrorIs(t, err, ErrLoginPending, "mutating a copy leaked into the repository")
}

func TestInMemorySessionStore(t *testing.T) {
	store := NewInMemorySessionStore()
	_, ok := store.LoadSession("x")
	assert.False(t, ok)

	s := Session{RequestorID: "a", Logins: map[string]Login{"st1": {State: "st1"}}}
	store.SaveSession(s)
	store.SaveSession(Session{RequestorID: "b", Authenticated: true})

	// The store keeps its own copy.
	s.Logins["st2"] = Login{State: "st2"}
	loaded, ok := store.LoadSession("a")
	require.True(t, ok)
	assert.Len(t, loaded.Logins, 1)

	byState, ok := store.SessionByLoginState("st1")
	require.True(t, ok)
	assert.Equal(t, "a", byState.RequestorID)
	_, ok = store.SessionByLoginState("st2")
	assert.False(t, ok)

	// Saving without the login drops its state.
	loaded.Logins = map[string]Login{}
	store.SaveSession(loaded)
	_, ok = store.SessionByLoginState("st1")
	assert.False(t, ok)

	assert.Equal(t, 1, store.CountAuthenticated())
}
