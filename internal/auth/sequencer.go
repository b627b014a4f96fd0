package auth

import "fmt"

// InitPhase is the position of the initialization flow.
type InitPhase string

// Init phases, in the order a successful cycle visits them.
const (
	InitUninitialized         InitPhase = "uninitialized"
	InitRequestorPending      InitPhase = "requestor_pending"
	InitAuthCheckPending      InitPhase = "auth_check_pending"
	InitProviderLookupPending InitPhase = "provider_lookup_pending"
	InitInitiated             InitPhase = "initiated"
)

// LogoutPhase is the position of the logout flow.
type LogoutPhase string

// Logout phases. A cycle returns to LogoutIdle once authentication settles.
const (
	LogoutIdle                LogoutPhase = "idle"
	LogoutRedirectPending     LogoutPhase = "redirect_pending"
	LogoutSilentReauthPending LogoutPhase = "silent_reauth_pending"
)

// flowEvent drives a sequencer.
type flowEvent string

const (
	evInitRequested    flowEvent = "init_requested"
	evRequestorReady   flowEvent = "requestor_ready"
	evRequestorFailed  flowEvent = "requestor_failed"
	evAuthStatus       flowEvent = "auth_status"
	evProviderResolved flowEvent = "provider_resolved"

	evLogoutRequested flowEvent = "logout_requested"
	evLogoutRedirect  flowEvent = "logout_redirect"
	evAuthSettled     flowEvent = "auth_settled"
)

// step is the side effect attached to a transition.
type step string

const (
	stepNone                step = ""
	stepSetRequestor        step = "set_requestor"
	stepCheckAuthentication step = "check_authentication"
	stepGetSelectedProvider step = "get_selected_provider"
	stepAnnounce            step = "announce"
	stepLogout              step = "logout"
	stepFollowRedirect      step = "follow_redirect"
)

// transition is a single allowed edge.
type transition[S ~string] struct {
	From  S
	Event flowEvent
	To    S
	Step  step
}

var initTransitions = []transition[InitPhase]{
	// init() always re-issues the requestor call; only the pending phase advances on it.
	{From: InitUninitialized, Event: evInitRequested, To: InitRequestorPending, Step: stepSetRequestor},
	{From: InitRequestorPending, Event: evInitRequested, To: InitRequestorPending, Step: stepSetRequestor},
	{From: InitAuthCheckPending, Event: evInitRequested, To: InitAuthCheckPending, Step: stepSetRequestor},
	{From: InitProviderLookupPending, Event: evInitRequested, To: InitProviderLookupPending, Step: stepSetRequestor},
	{From: InitInitiated, Event: evInitRequested, To: InitInitiated, Step: stepSetRequestor},

	{From: InitRequestorPending, Event: evRequestorReady, To: InitAuthCheckPending, Step: stepCheckAuthentication},
	{From: InitRequestorPending, Event: evRequestorFailed, To: InitUninitialized},
	{From: InitAuthCheckPending, Event: evAuthStatus, To: InitProviderLookupPending, Step: stepGetSelectedProvider},
	{From: InitProviderLookupPending, Event: evProviderResolved, To: InitInitiated, Step: stepAnnounce},
}

var logoutTransitions = []transition[LogoutPhase]{
	{From: LogoutIdle, Event: evLogoutRequested, To: LogoutRedirectPending, Step: stepLogout},
	{From: LogoutRedirectPending, Event: evLogoutRequested, To: LogoutRedirectPending, Step: stepLogout},
	{From: LogoutSilentReauthPending, Event: evLogoutRequested, To: LogoutRedirectPending, Step: stepLogout},

	{From: LogoutRedirectPending, Event: evLogoutRedirect, To: LogoutSilentReauthPending, Step: stepFollowRedirect},
	{From: LogoutSilentReauthPending, Event: evLogoutRedirect, To: LogoutSilentReauthPending, Step: stepFollowRedirect},

	// The engine may settle a logout without redirecting.
	{From: LogoutRedirectPending, Event: evAuthSettled, To: LogoutIdle},
	{From: LogoutSilentReauthPending, Event: evAuthSettled, To: LogoutIdle},
}

// sequencer looks up transitions. It holds no state of its own; the current
// phase lives in the session so the whole flow can be exercised as a pure
// function.
type sequencer[S ~string] struct {
	index map[string]transition[S]
}

func newSequencer[S ~string](ts []transition[S]) sequencer[S] {
	idx := make(map[string]transition[S], len(ts))
	for _, t := range ts {
		k := seqKey(t.From, t.Event)
		if _, exists := idx[k]; exists {
			panic(fmt.Sprintf("duplicate transition: %s -> %s", t.From, t.Event))
		}
		idx[k] = t
	}
	return sequencer[S]{index: idx}
}

// next returns the transition for event in phase from. ok is false when the
// event is not expected there and must be ignored.
func (q sequencer[S]) next(from S, event flowEvent) (t transition[S], ok bool) {
	t, ok = q.index[seqKey(from, event)]
	return t, ok
}

func seqKey[S ~string](from S, event flowEvent) string {
	return string(from) + "|" + string(event)
}

var (
	initFlow   = newSequencer(initTransitions)
	logoutFlow = newSequencer(logoutTransitions)
)
