package auth

// Engine is the entitlement engine client. Every method is fire-and-forget:
// the engine answers later, possibly from another goroutine, through the
// Callbacks it was created with.
type Engine interface {
	SetRequestor(requestorID, signedRequestorID string, endpoints []string)
	CheckAuthentication()
	GetAuthentication()
	// GetAuthenticationToken finalizes an interactive login.
	GetAuthenticationToken()
	// SetSelectedProvider with an empty id aborts the selection in flight.
	SetSelectedProvider(providerID string)
	GetSelectedProvider()
	Logout()
	GetAuthorization(resourceID string)
	CheckPreauthorizedResources(resourceIDs []string)
	GetMetadata(key string)
}

// Callbacks is the notification surface an Engine reports to.
type Callbacks interface {
	RequestorSetComplete(ok bool)
	AuthenticationStatus(authenticated bool, errorCode string)
	SelectedProvider(p *NativeProvider)
	ProviderList(ps []*NativeProvider)
	LoginRedirect(url string)
	AuthorizationToken(token, resourceID string)
	AuthorizationFailed(resourceID, errorCode, errorDetail string)
	TrackingEvent(kind string, data []string)
	MetadataResult(key string, status MetadataStatus)
	PreauthorizedResources(resourceIDs []string)
}

// EngineFactory creates the engine client bound to cb. It is called once per
// Orchestrator.
type EngineFactory func(cb Callbacks) (Engine, error)
