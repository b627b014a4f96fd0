package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// RedirectFollower loads a logout redirect without showing it to the user.
type RedirectFollower interface {
	Follow(ctx context.Context, url string) error
}

// RedirectFollowerFunc adapts a function to RedirectFollower.
type RedirectFollowerFunc func(ctx context.Context, url string) error

// Follow calls f.
func (f RedirectFollowerFunc) Follow(ctx context.Context, url string) error {
	return f(ctx, url)
}

// HTTPRedirectFollower follows a redirect chain with an HTTP client and
// discards the final page.
type HTTPRedirectFollower struct {
	client *http.Client
}

// NewHTTPRedirectFollower uses client, or http.DefaultClient when nil.
func NewHTTPRedirectFollower(client *http.Client) *HTTPRedirectFollower {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRedirectFollower{client: client}
}

// Follow implements RedirectFollower. Any 4xx or 5xx final status is an error.
func (f *HTTPRedirectFollower) Follow(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("logout redirect: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("logout redirect: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("logout redirect: status %d", resp.StatusCode)
	}
	return nil
}
