package auth

import (
	"log/slog"
	"net/url"
	"strings"

	"tve-auth/internal/platform/logger"
)

// Finalizer is the part of the Orchestrator the login page needs.
type Finalizer interface {
	FinalizeAuthentication() error
	ReportError(kind ErrorKind, message, detail string) error
}

// LoginWatcher follows the navigation of an interactive login page and
// finalizes authentication when the page lands on the completion URL.
type LoginWatcher struct {
	completion string
	raw        string
	f          Finalizer
	log        *slog.Logger
}

// NewLoginWatcher returns a watcher for completionURL, which may be given
// URL-encoded.
func NewLoginWatcher(completionURL string, f Finalizer, log *slog.Logger) (*LoginWatcher, error) {
	completionURL = strings.TrimSpace(completionURL)
	if completionURL == "" {
		return nil, ErrNoCompletionURL
	}
	decoded, err := url.QueryUnescape(completionURL)
	if err != nil {
		decoded = completionURL
	}
	return &LoginWatcher{
		completion: decoded,
		raw:        completionURL,
		f:          f,
		log:        logger.Component(log, "login"),
	}, nil
}

// Navigate reports whether u is the completion URL and, when it is, asks
// the orchestrator to finalize.
func (w *LoginWatcher) Navigate(u string) (bool, error) {
	if u != w.completion && u != w.raw {
		w.log.Debug("login page navigated", slog.String("url", u))
		return false, nil
	}
	w.log.Info("login completed")
	return true, w.f.FinalizeAuthentication()
}

// LoadFailed reports a login page that could not be loaded.
func (w *LoginWatcher) LoadFailed(description string) error {
	w.log.Warn("login page failed", slog.String("description", description))
	return w.f.ReportError(ErrorAuthN, "Failed loading login page", description)
}

// CompletionURL returns the decoded completion URL.
func (w *LoginWatcher) CompletionURL() string {
	return w.completion
}
