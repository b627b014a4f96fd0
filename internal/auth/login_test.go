package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFinalizer struct {
	finalized int
	reported  []string
	err       error
}

func (f *fakeFinalizer) FinalizeAuthentication() error {
	f.finalized++
	return f.err
}

func (f *fakeFinalizer) ReportError(kind ErrorKind, message, detail string) error {
	f.reported = append(f.reported, kind.String()+"|"+message+"|"+detail)
	return nil
}

func TestNewLoginWatcherRequiresURL(t *testing.T) {
	_, err := NewLoginWatcher("  ", &fakeFinalizer{}, nil)
	assert.ErrorIs(t, err, ErrNoCompletionURL)
}

func TestLoginWatcherFinalizesOnCompletionURL(t *testing.T) {
	f := &fakeFinalizer{}
	w, err := NewLoginWatcher("http%3A%2F%2Flocalhost%3A8080%2Fengine%2Fcompleted", f, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/engine/completed", w.CompletionURL())

	done, err := w.Navigate("http://mvpd.test/login?step=2")
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 0, f.finalized)

	done, err = w.Navigate("http://localhost:8080/engine/completed")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 1, f.finalized)
}

func TestLoginWatcherPropagatesFinalizeError(t *testing.T) {
	f := &fakeFinalizer{err: ErrClosed}
	w, err := NewLoginWatcher("http://localhost/completed", f, nil)
	require.NoError(t, err)

	done, err := w.Navigate("http://localhost/completed")
	assert.True(t, done)
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestLoginWatcherLoadFailed(t *testing.T) {
	f := &fakeFinalizer{}
	w, err := NewLoginWatcher("http://localhost/completed", f, nil)
	require.NoError(t, err)

	require.NoError(t, w.LoadFailed("net::ERR_NAME_NOT_RESOLVED"))
	assert.Equal(t, []string{"AUTHN|Failed loading login page|net::ERR_NAME_NOT_RESOLVED"}, f.reported)
}

func TestLoginWatcherDrivesOrchestrator(t *testing.T) {
	h := newHarness(t)
	h.initiate(t, false, nil)

	w, err := NewLoginWatcher("http://localhost/completed", h.o, nil)
	require.NoError(t, err)
	_, err = w.Navigate("http://localhost/completed")
	require.NoError(t, err)
	h.flush(t)
	assert.Equal(t, 1, h.engine.Count("GetAuthenticationToken"))
}
