package entitlement

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tve-auth/internal/platform/logger"
	"tve-auth/internal/token"
)

// Pages serves the provider-side pages a login or logout redirect lands on.
type Pages struct {
	sessions      *SessionRepository
	tokens        *token.Issuer
	completionURL string
	log           *slog.Logger
}

// NewPages returns the page handlers. A finished login redirects the
// browser to completionURL. tokens may be nil to disable token checks.
func NewPages(sessions *SessionRepository, tokens *token.Issuer, completionURL string, log *slog.Logger) *Pages {
	return &Pages{
		sessions:      sessions,
		tokens:        tokens,
		completionURL: completionURL,
		log:           logger.Component(log, "engine_pages"),
	}
}

// Routes returns a router with GET /login, GET /logout, GET /completed and,
// with an issuer, GET /tokens/verify.
func (p *Pages) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/login", p.Login)
	r.Get("/logout", p.Logout)
	r.Get("/completed", p.Completed)
	if p.tokens != nil {
		r.Get("/tokens/verify", p.VerifyToken)
	}
	return r
}

// Login handles GET /login?state=... and stands in for the provider's
// sign-in form: the login is accepted as soon as the page is visited.
func (p *Pages) Login(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	login, err := p.sessions.CompleteLogin(state)
	if errors.Is(err, ErrUnknownLogin) {
		p.log.Info("unknown login state", slog.String("state", state))
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		p.log.Error("complete login failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	p.log.Info("login completed", slog.String("provider_id", login.ProviderID))
	http.Redirect(w, r, p.completionURL, http.StatusFound)
}

// Logout handles GET /logout. The session was already cleared by the
// engine; the page only acknowledges.
func (p *Pages) Logout(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("signed out\n"))
}

// Completed handles GET /completed, the page the login watcher waits for.
func (p *Pages) Completed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("login complete\n"))
}

type tokenInfo struct {
	ResourceID  string    `json:"resourceId"`
	ProviderID  string    `json:"providerId"`
	RequestorID string    `json:"requestorId"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// VerifyToken handles GET /tokens/verify for a media service holding a token
// from an AUTHORIZED event. The token is read from "Authorization: Bearer"
// or ?token=. Invalid and expired tokens answer 401.
func (p *Pages) VerifyToken(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" {
		raw = r.URL.Query().Get("token")
	}
	if raw == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	claims, err := p.tokens.Verify(raw)
	if err != nil {
		reason := "invalid"
		if errors.Is(err, token.ErrExpiredToken) {
			reason = "expired"
		}
		p.log.Info("token rejected", slog.String("reason", reason))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": reason})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(tokenInfo{
		ResourceID:  claims.ResourceID,
		ProviderID:  claims.ProviderID,
		RequestorID: claims.RequestorID,
		ExpiresAt:   claims.ExpiresAt.Time,
	})
}
