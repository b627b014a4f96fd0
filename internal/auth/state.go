package auth

// session is the mutable state owned by the Orchestrator. It is written only
// from the serial loop.
type session struct {
	initiated        bool
	currentProvider  *Provider
	loggingOut       bool
	pendingVideoItem *VideoItem

	initPhase   InitPhase
	logoutPhase LogoutPhase

	// SetRequestor calls not yet answered by the engine.
	requestorCalls int

	// Carried from the auth-status step to the announce step of an init cycle.
	cycleAuthenticated bool
	cycleErrorCode     string
}

func newSession() session {
	return session{initPhase: InitUninitialized, logoutPhase: LogoutIdle}
}

// State is a read-only copy of the session.
type State struct {
	Initiated        bool        `json:"initiated"`
	CurrentProvider  *Provider   `json:"currentProvider,omitempty"`
	LoggingOut       bool        `json:"loggingOut"`
	PendingVideoItem *VideoItem  `json:"pendingVideoItem,omitempty"`
	InitPhase        InitPhase   `json:"initPhase"`
	LogoutPhase      LogoutPhase `json:"logoutPhase"`
}

func (s *session) snapshot() State {
	return State{
		Initiated:        s.initiated,
		CurrentProvider:  s.currentProvider.clone(),
		LoggingOut:       s.loggingOut,
		PendingVideoItem: s.pendingVideoItem.clone(),
		InitPhase:        s.initPhase,
		LogoutPhase:      s.logoutPhase,
	}
}
