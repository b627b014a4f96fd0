package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPRedirectFollowerFollowsChain(t *testing.T) {
	var landed atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/signed-out", http.StatusFound)
	})
	mux.HandleFunc("/signed-out", func(w http.ResponseWriter, r *http.Request) {
		landed.Store(true)
		w.Write([]byte("bye"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewHTTPRedirectFollower(srv.Client())
	require.NoError(t, f.Follow(context.Background(), srv.URL+"/logout"))
	assert.True(t, landed.Load())
}

func TestHTTPRedirectFollowerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewHTTPRedirectFollower(srv.Client())
	err := f.Follow(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPRedirectFollowerHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := NewHTTPRedirectFollower(srv.Client())
	assert.ErrorIs(t, f.Follow(ctx, srv.URL), context.Canceled)
}
