// Package entitlement is an in-process entitlement engine. It answers the
// auth.Engine calls from a YAML catalog of requestors and providers, keeps
// per-requestor sessions, serves the provider login and logout pages and
// signs media tokens for entitled resources.
package entitlement

import (
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"tve-auth/internal/auth"
	"tve-auth/internal/platform/logger"
	"tve-auth/internal/token"
)

// Error codes reported through the engine callbacks.
const (
	CodeNotAuthenticated = "User Not Authenticated Error"
	CodeNotAuthorized    = "User Not Authorized Error"
	CodeRequestorNotSet  = "Requestor Not Set"
	CodeUnknownProvider  = "Unknown Provider"
	CodeLoginPending     = "Login Not Completed"
	CodeRateLimited      = "Too Many Requests"
	CodeTokenFailure     = "Token Generation Failed"
)

// Tracking event kinds.
const (
	TrackAuthentication = "authenticationDetection"
	TrackAuthorization  = "authorizationDetection"
	TrackProvider       = "mvpdSelection"
)

const queueSize = 64

// Config wires a Simulator to its shared collaborators.
type Config struct {
	Catalog  *CatalogStore
	Sessions *SessionRepository
	Tokens   *token.Issuer

	// BaseURL is where the login and logout pages are served. The first
	// endpoint passed to SetRequestor overrides it.
	BaseURL string

	AuthzRate  float64
	AuthzBurst int

	Log *slog.Logger
}

// Simulator implements auth.Engine. Calls are queued and answered from its
// own goroutine, like a remote engine would.
type Simulator struct {
	cfg     Config
	cb      auth.Callbacks
	limiter *rate.Limiter
	log     *slog.Logger

	jobs      chan func()
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// Owned by the worker goroutine.
	requestorID string
	baseURL     string
}

// NewFactory returns an auth.EngineFactory creating simulators from cfg.
func NewFactory(cfg Config) auth.EngineFactory {
	return func(cb auth.Callbacks) (auth.Engine, error) {
		return NewSimulator(cfg, cb)
	}
}

// NewSimulator starts a simulator reporting to cb.
func NewSimulator(cfg Config, cb auth.Callbacks) (*Simulator, error) {
	if cfg.Catalog == nil || cfg.Sessions == nil || cfg.Tokens == nil {
		return nil, errors.New("entitlement: catalog, sessions and tokens are required")
	}
	if cb == nil {
		return nil, errors.New("entitlement: callbacks are required")
	}
	limit := rate.Inf
	if cfg.AuthzRate > 0 {
		limit = rate.Limit(cfg.AuthzRate)
	}
	burst := cfg.AuthzBurst
	if burst <= 0 {
		burst = 1
	}
	s := &Simulator{
		cfg:     cfg,
		cb:      cb,
		limiter: rate.NewLimiter(limit, burst),
		log:     logger.Component(cfg.Log, "entitlement"),
		jobs:    make(chan func(), queueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
	go s.run()
	return s, nil
}

func (s *Simulator) run() {
	defer close(s.stopped)
	for {
		select {
		case fn := <-s.jobs:
			fn()
		case <-s.done:
			return
		}
	}
}

func (s *Simulator) enqueue(method string, fn func()) {
	select {
	case s.jobs <- fn:
	case <-s.done:
		s.log.Debug("engine call after close", slog.String("method", method))
	}
}

// Close stops the worker. Queued calls are discarded.
func (s *Simulator) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		<-s.stopped
	})
	return nil
}

// SetRequestor implements auth.Engine.
func (s *Simulator) SetRequestor(requestorID, signedRequestorID string, endpoints []string) {
	endpoints = append([]string(nil), endpoints...)
	s.enqueue("SetRequestor", func() {
		if !s.cfg.Catalog.Get().RequestorValid(requestorID, signedRequestorID) {
			s.log.Warn("requestor rejected", slog.String("requestor_id", requestorID))
			s.cb.RequestorSetComplete(false)
			return
		}
		s.requestorID = requestorID
		if len(endpoints) > 0 && endpoints[0] != "" {
			s.baseURL = strings.TrimRight(endpoints[0], "/")
		}
		s.cfg.Sessions.Open(requestorID)
		s.log.Info("requestor set", slog.String("requestor_id", requestorID), slog.String("base_url", s.baseURL))
		s.cb.RequestorSetComplete(true)
	})
}

// CheckAuthentication implements auth.Engine.
func (s *Simulator) CheckAuthentication() {
	s.enqueue("CheckAuthentication", func() {
		sess, ok := s.session()
		if !ok {
			s.cb.AuthenticationStatus(false, CodeRequestorNotSet)
			return
		}
		s.track(TrackAuthentication, strconv.FormatBool(sess.Authenticated), sess.ProviderID)
		if sess.Authenticated {
			s.cb.AuthenticationStatus(true, "")
			return
		}
		s.cb.AuthenticationStatus(false, CodeNotAuthenticated)
	})
}

// GetAuthentication implements auth.Engine. An unauthenticated session gets
// the provider list to choose from.
func (s *Simulator) GetAuthentication() {
	s.enqueue("GetAuthentication", func() {
		sess, ok := s.session()
		if !ok {
			s.cb.AuthenticationStatus(false, CodeRequestorNotSet)
			return
		}
		if sess.Authenticated {
			s.cb.AuthenticationStatus(true, "")
			return
		}
		s.cb.ProviderList(s.cfg.Catalog.Get().NativeProviders())
	})
}

// SetSelectedProvider implements auth.Engine. Interactive providers answer
// with a login page redirect; the others authenticate immediately.
func (s *Simulator) SetSelectedProvider(providerID string) {
	s.enqueue("SetSelectedProvider", func() {
		if _, ok := s.session(); !ok {
			s.cb.AuthenticationStatus(false, CodeRequestorNotSet)
			return
		}
		if providerID == "" {
			_ = s.cfg.Sessions.SelectProvider(s.requestorID, "")
			s.cb.SelectedProvider(nil)
			return
		}
		p, ok := s.cfg.Catalog.Get().Provider(providerID)
		if !ok {
			s.log.Warn("provider selection failed",
				slog.String("provider_id", providerID),
				slog.String("error", ErrUnknownProvider.Error()))
			s.cb.AuthenticationStatus(false, CodeUnknownProvider)
			return
		}
		_ = s.cfg.Sessions.SelectProvider(s.requestorID, p.ID)
		s.track(TrackProvider, p.ID)

		if !p.Interactive {
			_ = s.cfg.Sessions.Authenticate(s.requestorID, p.ID)
			s.cb.AuthenticationStatus(true, "")
			return
		}
		login, err := s.cfg.Sessions.BeginLogin(s.requestorID, p.ID)
		if err != nil {
			s.cb.AuthenticationStatus(false, CodeRequestorNotSet)
			return
		}
		s.cb.LoginRedirect(s.loginURL(login.State, p.ID))
	})
}

// GetAuthenticationToken implements auth.Engine.
func (s *Simulator) GetAuthenticationToken() {
	s.enqueue("GetAuthenticationToken", func() {
		providerID, err := s.cfg.Sessions.FinalizeLogin(s.requestorID)
		if err != nil {
			s.log.Info("login finalize failed", slog.String("error", err.Error()))
			code := CodeLoginPending
			if errors.Is(err, ErrNoSession) {
				code = CodeRequestorNotSet
			}
			s.cb.AuthenticationStatus(false, code)
			return
		}
		s.track(TrackAuthentication, "true", providerID)
		s.cb.AuthenticationStatus(true, "")
	})
}

// GetSelectedProvider implements auth.Engine.
func (s *Simulator) GetSelectedProvider() {
	s.enqueue("GetSelectedProvider", func() {
		sess, ok := s.session()
		if !ok || sess.ProviderID == "" {
			s.cb.SelectedProvider(nil)
			return
		}
		p, ok := s.cfg.Catalog.Get().Provider(sess.ProviderID)
		if !ok {
			s.cb.SelectedProvider(nil)
			return
		}
		s.cb.SelectedProvider(p.Native())
	})
}

// Logout implements auth.Engine. The session is cleared and the caller is
// sent to the logout page.
func (s *Simulator) Logout() {
	s.enqueue("Logout", func() {
		if err := s.cfg.Sessions.Logout(s.requestorID); err != nil {
			s.cb.AuthenticationStatus(false, CodeRequestorNotSet)
			return
		}
		s.cb.LoginRedirect(s.baseURL + "/logout")
	})
}

// GetAuthorization implements auth.Engine.
func (s *Simulator) GetAuthorization(resourceID string) {
	s.enqueue("GetAuthorization", func() {
		if !s.limiter.Allow() {
			s.cb.AuthorizationFailed(resourceID, CodeRateLimited, "authorization rate exceeded")
			return
		}
		sess, ok := s.session()
		if !ok || !sess.Authenticated {
			s.cb.AuthorizationFailed(resourceID, CodeNotAuthenticated, "authenticate before requesting authorization")
			return
		}
		entitled := s.cfg.Catalog.Get().Entitled(sess.ProviderID, resourceID)
		s.track(TrackAuthorization, strconv.FormatBool(entitled), sess.ProviderID, resourceID)
		if !entitled {
			s.cb.AuthorizationFailed(resourceID, CodeNotAuthorized, "provider "+sess.ProviderID+" does not include "+resourceID)
			return
		}
		tok, claims, err := s.cfg.Tokens.Issue(s.requestorID, sess.ProviderID, resourceID, s.requestorID)
		if err != nil {
			s.log.Error("token issue failed", slog.String("error", err.Error()))
			s.cb.AuthorizationFailed(resourceID, CodeTokenFailure, err.Error())
			return
		}
		s.log.Debug("media token issued",
			slog.String("token_id", claims.ID),
			slog.String("resource_id", resourceID),
			slog.Duration("ttl", s.cfg.Tokens.TTL()))
		s.cb.AuthorizationToken(tok, resourceID)
	})
}

// CheckPreauthorizedResources implements auth.Engine.
func (s *Simulator) CheckPreauthorizedResources(resourceIDs []string) {
	resourceIDs = append([]string(nil), resourceIDs...)
	s.enqueue("CheckPreauthorizedResources", func() {
		out := []string{}
		if sess, ok := s.session(); ok && sess.Authenticated {
			c := s.cfg.Catalog.Get()
			for _, id := range resourceIDs {
				if c.Entitled(sess.ProviderID, id) {
					out = append(out, id)
				}
			}
		}
		s.cb.PreauthorizedResources(out)
	})
}

// GetMetadata implements auth.Engine.
func (s *Simulator) GetMetadata(key string) {
	s.enqueue("GetMetadata", func() {
		v, ok := s.cfg.Catalog.Get().Metadata[key]
		s.cb.MetadataResult(key, auth.MetadataStatus{Found: ok, Value: v})
	})
}

func (s *Simulator) session() (Session, bool) {
	if s.requestorID == "" {
		return Session{}, false
	}
	return s.cfg.Sessions.Get(s.requestorID)
}

func (s *Simulator) track(kind string, data ...string) {
	s.cb.TrackingEvent(kind, data)
}

func (s *Simulator) loginURL(state, providerID string) string {
	q := url.Values{}
	q.Set("state", state)
	q.Set("provider", providerID)
	return s.baseURL + "/login?" + q.Encode()
}

var _ auth.Engine = (*Simulator)(nil)
