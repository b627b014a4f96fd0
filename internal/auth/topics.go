package auth

// Public topics, consumed by UI collaborators.
const (
	TopicAuthInitiated           = "AuthInitiated"
	TopicAuthenticated           = "Authenticated"
	TopicNotAuthenticated        = "NotAuthenticated"
	TopicGotProvider             = "GotProvider"
	TopicNoProvider              = "NoProvider"
	TopicDisplayProviderSelector = "DisplayProviderSelector"
	TopicOpenLoginURL            = "OpenLoginUrl"
	TopicAuthorized              = "Authorized"
	TopicNotAuthorized           = "NotAuthorized"
	TopicPreAuthorized           = "PreAuthorized"
	TopicGotMetadata             = "GotMetadata"
	TopicAuthTracking            = "AuthTracking"
	TopicAuthError               = "AuthError"
)

// Internal topics sequence the init and logout flows and are never part of
// the public surface.
const (
	topicInternalRequestorReady   = "InternalSetRequestorComplete"
	topicInternalAuthenticated    = "InternalAuthenticated"
	topicInternalNotAuthenticated = "InternalNotAuthenticated"
	topicInternalGotProvider      = "InternalGotProvider"
	topicInternalNoProvider       = "InternalNoProvider"
	topicInternalLogout           = "InternalLogout"
)

// PublicTopics lists every topic a UI may subscribe to.
var PublicTopics = []string{
	TopicAuthInitiated,
	TopicAuthenticated,
	TopicNotAuthenticated,
	TopicGotProvider,
	TopicNoProvider,
	TopicDisplayProviderSelector,
	TopicOpenLoginURL,
	TopicAuthorized,
	TopicNotAuthorized,
	TopicPreAuthorized,
	TopicGotMetadata,
	TopicAuthTracking,
	TopicAuthError,
}

// Property keys.
const (
	PropIsAuthenticated = "isAuthenticated"
	PropProvider        = "provider"
	PropProviders       = "providers"
	PropErrorCode       = "errorCode"
	PropErrorDetail     = "errorDetail"
	PropURL             = "url"
	PropVideoItem       = "videoItem"
	PropToken           = "token"
	PropResourceID      = "resourceId"
	PropResourceIDs     = "resourceIds"
	PropKey             = "key"
	PropStatus          = "status"
	PropEventType       = "eventType"
	PropData            = "data"
	PropKind            = "kind"
	PropMessage         = "message"
	PropDetail          = "detail"
)

// signal is an engine notification whose topic depends on session state.
type signal int

const (
	sigAuthenticated signal = iota
	sigNotAuthenticated
	sigGotProvider
	sigNoProvider
	sigLoginRedirect
)

// route is one row of the topic table: a public and an internal column and
// the condition that selects the internal one.
type route struct {
	public   string
	internal string
	private  func(s *session) bool
}

var routes = map[signal]route{
	sigAuthenticated:    {TopicAuthenticated, topicInternalAuthenticated, beforeInit},
	sigNotAuthenticated: {TopicNotAuthenticated, topicInternalNotAuthenticated, beforeInit},
	sigGotProvider:      {TopicGotProvider, topicInternalGotProvider, beforeInit},
	sigNoProvider:       {TopicNoProvider, topicInternalNoProvider, beforeInit},
	sigLoginRedirect:    {TopicOpenLoginURL, topicInternalLogout, duringLogout},
}

func beforeInit(s *session) bool   { return !s.initiated }
func duringLogout(s *session) bool { return s.loggingOut }

// topicFor resolves the topic for sig against the current session state.
// Every state-dependent topic choice goes through here.
func (s *session) topicFor(sig signal) string {
	r := routes[sig]
	if r.private(s) {
		return r.internal
	}
	return r.public
}
