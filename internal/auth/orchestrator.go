package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"tve-auth/internal/bus"
	"tve-auth/internal/platform/logger"
	"tve-auth/internal/platform/metrics"
)

// DefaultRedirectTimeout bounds how long a logout redirect may take to load.
const DefaultRedirectTimeout = 10 * time.Second

// Config identifies the requestor to the entitlement engine.
type Config struct {
	RequestorID       string
	SignedRequestorID string
	Endpoints         []string
}

// Validate reports ErrInvalidConfig when credentials are missing.
func (c Config) Validate() error {
	if c.RequestorID == "" || c.SignedRequestorID == "" {
		return ErrInvalidConfig
	}
	return nil
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = logger.Component(log, "auth") }
}

// WithMetrics records engine calls, auth errors and the initiated gauge in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithRedirectFollower sets how logout redirects are loaded.
func WithRedirectFollower(f RedirectFollower) Option {
	return func(o *Orchestrator) { o.follower = f }
}

// WithRedirectTimeout bounds a single logout redirect load.
func WithRedirectTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.redirectTimeout = d
		}
	}
}

// Orchestrator owns the entitlement engine client and the session state.
// Every operation and every engine callback runs on one serial loop, so
// state changes and published events are totally ordered. Operations return
// as soon as they are queued; outcomes arrive as bus events.
type Orchestrator struct {
	cfg             Config
	bus             bus.Bus
	engine          Engine
	log             *slog.Logger
	metrics         *metrics.Metrics
	follower        RedirectFollower
	redirectTimeout time.Duration

	loop *loop
	subs []bus.Subscription

	mu sync.RWMutex
	s  session

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New validates cfg, creates the engine through factory and subscribes to the
// internal sequencing topics on b. When the factory fails nothing is left
// running and the error wraps ErrEngineUnavailable.
func New(cfg Config, b bus.Bus, factory EngineFactory, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b == nil || factory == nil {
		return nil, errors.New("auth: bus and engine factory are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:             cfg,
		bus:             b,
		log:             logger.Component(nil, "auth"),
		redirectTimeout: DefaultRedirectTimeout,
		s:               newSession(),
		ctx:             ctx,
		cancel:          cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.follower == nil {
		o.follower = NewHTTPRedirectFollower(nil)
	}
	o.loop = newLoop(o.log)

	engine, err := factory(&CallbackAdapter{o: o})
	if err != nil {
		cancel()
		o.loop.close()
		return nil, fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}
	o.engine = engine

	o.subs = []bus.Subscription{
		b.On(topicInternalRequestorReady, o.onFlowEvent(evRequestorReady)),
		b.On(topicInternalAuthenticated, o.onFlowEvent(evAuthStatus)),
		b.On(topicInternalNotAuthenticated, o.onFlowEvent(evAuthStatus)),
		b.On(topicInternalGotProvider, o.onFlowEvent(evProviderResolved)),
		b.On(topicInternalNoProvider, o.onFlowEvent(evProviderResolved)),
		b.On(topicInternalLogout, o.onLogoutRedirect),
	}

	o.log.Info("orchestrator created", slog.String("requestor_id", cfg.RequestorID))
	return o, nil
}

// Init starts, or restarts, the initialization sequence. Each call re-issues
// the requestor call; the session becomes initiated at most once.
func (o *Orchestrator) Init() error {
	return o.submit(func() { o.advanceInit(evInitRequested, bus.Event{}) })
}

// Authenticate asks the engine for the current authentication status.
func (o *Orchestrator) Authenticate() error {
	return o.submit(func() {
		if !o.guard(ErrorAuthN, "Authenticate") {
			return
		}
		o.call("GetAuthentication", o.engine.GetAuthentication)
	})
}

// AuthenticateWith selects p as the provider to log in with.
func (o *Orchestrator) AuthenticateWith(p Provider) error {
	return o.submit(func() {
		if !o.guard(ErrorAuthN, "AuthenticateWith") {
			return
		}
		o.update(func(s *session) { s.currentProvider = p.clone() })
		o.call("SetSelectedProvider", func() { o.engine.SetSelectedProvider(p.ID) })
	})
}

// CancelAuthentication aborts a provider selection in flight. The engine
// answers with an ordinary "no provider" outcome.
func (o *Orchestrator) CancelAuthentication() error {
	return o.submit(func() {
		if !o.guard(ErrorAuthN, "CancelAuthentication") {
			return
		}
		o.update(func(s *session) { s.currentProvider = nil })
		o.call("SetSelectedProvider", func() { o.engine.SetSelectedProvider("") })
	})
}

// FinalizeAuthentication completes an interactive login once the login page
// reached the completion URL.
func (o *Orchestrator) FinalizeAuthentication() error {
	return o.submit(func() {
		if !o.guard(ErrorAuthN, "FinalizeAuthentication") {
			return
		}
		o.call("GetAuthenticationToken", o.engine.GetAuthenticationToken)
	})
}

// Logout logs the user out. The engine's redirect is followed silently and
// followed by a fresh authentication check instead of opening a login page.
func (o *Orchestrator) Logout() error {
	return o.submit(func() {
		if !o.guard(ErrorAuthN, "Logout") {
			return
		}
		o.update(func(s *session) { s.loggingOut = true })
		o.advanceLogout(evLogoutRequested, "")
	})
}

// Authorize requests a media token for resourceID.
func (o *Orchestrator) Authorize(resourceID string) error {
	return o.submit(func() { o.authorize(resourceID) })
}

// AuthorizeItem records item as pending and authorizes its resource. The
// outcome event carries the most recently requested item.
func (o *Orchestrator) AuthorizeItem(item VideoItem) error {
	return o.submit(func() {
		if !o.guard(ErrorAuthZ, "AuthorizeItem") {
			return
		}
		o.update(func(s *session) { s.pendingVideoItem = item.clone() })
		o.authorize(item.ResourceID)
	})
}

// CheckPreauthorizedResources asks which of ids the user may play without a
// full authorization round trip.
func (o *Orchestrator) CheckPreauthorizedResources(ids []string) error {
	ids = append([]string(nil), ids...)
	return o.submit(func() {
		if !o.guard(ErrorAuthZ, "CheckPreauthorizedResources") {
			return
		}
		o.call("CheckPreauthorizedResources", func() { o.engine.CheckPreauthorizedResources(ids) })
	})
}

// GetMetadata requests a metadata value from the engine.
func (o *Orchestrator) GetMetadata(key string) error {
	return o.submit(func() {
		if !o.guard(ErrorAuthN, "GetMetadata") {
			return
		}
		o.call("GetMetadata", func() { o.engine.GetMetadata(key) })
	})
}

// ReportError publishes an AUTH_ERROR on behalf of a collaborator, such as
// the login page failing to load.
func (o *Orchestrator) ReportError(kind ErrorKind, message, detail string) error {
	return o.submit(func() { o.dispatchError(kind, message, detail) })
}

// Snapshot returns a copy of the session state.
func (o *Orchestrator) Snapshot() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.s.snapshot()
}

// Flush blocks until every queued operation and callback, including the
// work they queued in turn, has run.
func (o *Orchestrator) Flush(ctx context.Context) error {
	return o.loop.flush(ctx)
}

// Close stops the orchestrator. Queued work runs first; later operations
// return ErrClosed and later callbacks are dropped. The engine is closed when
// it implements io.Closer.
func (o *Orchestrator) Close() error {
	var err error
	o.closeOnce.Do(func() {
		o.cancel()
		o.loop.close()
		o.wg.Wait()
		for _, sub := range o.subs {
			_ = sub.Close()
		}
		if c, ok := o.engine.(io.Closer); ok {
			err = c.Close()
		}
		o.log.Info("orchestrator closed")
	})
	return err
}

func (o *Orchestrator) submit(fn func()) error {
	if !o.loop.submit(fn) {
		return ErrClosed
	}
	return nil
}

func (o *Orchestrator) authorize(resourceID string) {
	if !o.guard(ErrorAuthZ, "Authorize") {
		return
	}
	o.call("GetAuthorization", func() { o.engine.GetAuthorization(resourceID) })
}

// guard publishes an AUTH_ERROR of kind and reports false until the session
// is initiated.
func (o *Orchestrator) guard(kind ErrorKind, op string) bool {
	if o.s.initiated {
		return true
	}
	o.dispatchError(kind, "API Not Initiated", fmt.Sprintf("Trying to call %s before API initiated", op))
	return false
}

func (o *Orchestrator) dispatchError(kind ErrorKind, message, detail string) {
	o.log.Warn("auth error",
		slog.String("kind", kind.String()),
		slog.String("message", message),
		slog.String("detail", detail))
	if o.metrics != nil {
		o.metrics.IncAuthErrors(kind.String())
	}
	o.publish(TopicAuthError, bus.Properties{
		PropKind:    kind,
		PropMessage: message,
		PropDetail:  detail,
	})
}

func (o *Orchestrator) call(method string, fn func()) {
	o.log.Debug("engine call", slog.String("method", method))
	if o.metrics != nil {
		o.metrics.IncEngineCalls(method)
	}
	fn()
}

func (o *Orchestrator) publish(topic string, props bus.Properties) {
	o.bus.Publish(topic, props)
}

// update mutates the session. Only the loop calls it; reads on the loop need
// no lock.
func (o *Orchestrator) update(fn func(s *session)) {
	o.mu.Lock()
	fn(&o.s)
	o.mu.Unlock()
}

func (o *Orchestrator) onFlowEvent(ev flowEvent) bus.Handler {
	return func(e bus.Event) {
		o.loop.submit(func() { o.advanceInit(ev, e) })
	}
}

func (o *Orchestrator) onLogoutRedirect(e bus.Event) {
	url := e.String(PropURL)
	o.loop.submit(func() { o.advanceLogout(evLogoutRedirect, url) })
}

func (o *Orchestrator) advanceInit(ev flowEvent, e bus.Event) {
	t, ok := initFlow.next(o.s.initPhase, ev)
	if !ok {
		o.log.Debug("init event ignored",
			slog.String("phase", string(o.s.initPhase)),
			slog.String("event", string(ev)))
		return
	}
	if t.From != t.To {
		o.log.Debug("init phase",
			slog.String("from", string(t.From)),
			slog.String("to", string(t.To)))
	}
	o.update(func(s *session) {
		s.initPhase = t.To
		if ev == evAuthStatus {
			s.cycleAuthenticated = e.Bool(PropIsAuthenticated)
			s.cycleErrorCode = e.String(PropErrorCode)
		}
	})

	switch t.Step {
	case stepSetRequestor:
		o.update(func(s *session) { s.requestorCalls++ })
		o.call("SetRequestor", func() {
			o.engine.SetRequestor(o.cfg.RequestorID, o.cfg.SignedRequestorID, append([]string(nil), o.cfg.Endpoints...))
		})
	case stepCheckAuthentication:
		o.call("CheckAuthentication", o.engine.CheckAuthentication)
	case stepGetSelectedProvider:
		o.call("GetSelectedProvider", o.engine.GetSelectedProvider)
	case stepAnnounce:
		o.announce(ProviderOf(e))
	}
}

// announce completes an init cycle: AUTH_INITIATED strictly before the
// matching public authentication event, both with the same payload.
func (o *Orchestrator) announce(p *Provider) {
	o.update(func(s *session) { s.initiated = true })
	if o.metrics != nil {
		o.metrics.SetInitiated(true)
	}
	props := bus.Properties{
		PropIsAuthenticated: o.s.cycleAuthenticated,
		PropProvider:        providerProp(p),
		PropErrorCode:       o.s.cycleErrorCode,
	}
	o.log.Info("initiated",
		slog.Bool("authenticated", o.s.cycleAuthenticated),
		slog.String("error_code", o.s.cycleErrorCode))
	o.publish(TopicAuthInitiated, props)
	if o.s.cycleAuthenticated {
		o.publish(TopicAuthenticated, props)
	} else {
		o.publish(TopicNotAuthenticated, props)
	}
}

func (o *Orchestrator) advanceLogout(ev flowEvent, url string) {
	t, ok := logoutFlow.next(o.s.logoutPhase, ev)
	if !ok {
		if ev != evAuthSettled {
			o.log.Debug("logout event ignored",
				slog.String("phase", string(o.s.logoutPhase)),
				slog.String("event", string(ev)))
		}
		return
	}
	o.update(func(s *session) { s.logoutPhase = t.To })

	switch t.Step {
	case stepLogout:
		o.call("Logout", o.engine.Logout)
	case stepFollowRedirect:
		o.followRedirect(url)
	}
}

// followRedirect loads url off the loop and then checks authentication, so
// the outcome is a public authentication event rather than a login page.
func (o *Orchestrator) followRedirect(url string) {
	if o.ctx.Err() != nil {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(o.ctx, o.redirectTimeout)
		defer cancel()
		if err := o.follower.Follow(ctx, url); err != nil {
			o.log.Warn("logout redirect failed", slog.String("error", err.Error()))
		}
		o.loop.submit(func() {
			o.call("CheckAuthentication", o.engine.CheckAuthentication)
		})
	}()
}

// settleLogout ends a logout cycle once the engine reports an authentication
// or provider outcome.
func (o *Orchestrator) settleLogout() {
	o.update(func(s *session) { s.loggingOut = false })
	o.advanceLogout(evAuthSettled, "")
}

func providerProp(p *Provider) any {
	if p == nil {
		return nil
	}
	return p.clone()
}

func videoItemProp(v *VideoItem) any {
	if v == nil {
		return nil
	}
	return v.clone()
}
