package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on an Orchestrator after Close.
	ErrClosed = errors.New("auth: orchestrator closed")

	// ErrEngineUnavailable wraps a failure to create the entitlement engine client.
	ErrEngineUnavailable = errors.New("auth: entitlement engine unavailable")

	// ErrInvalidConfig is returned when requestor credentials are missing.
	ErrInvalidConfig = errors.New("auth: requestor id and signed requestor id are required")

	// ErrNoCompletionURL is returned by NewLoginWatcher without a completion URL.
	ErrNoCompletionURL = errors.New("auth: login completion url is required")
)

// ErrorKind classifies AUTH_ERROR events. Consumers branch on the kind,
// never on the message text.
type ErrorKind int

const (
	// ErrorInit reports a failed requestor setup.
	ErrorInit ErrorKind = 0
	// ErrorAuthN reports an authentication-side failure, including calls
	// made before the session was initiated.
	ErrorAuthN ErrorKind = 10
	// ErrorAuthZ reports an authorization-side failure.
	ErrorAuthZ ErrorKind = 20
)

// String returns INIT, AUTHN or AUTHZ.
func (k ErrorKind) String() string {
	switch k {
	case ErrorInit:
		return "INIT"
	case ErrorAuthN:
		return "AUTHN"
	case ErrorAuthZ:
		return "AUTHZ"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// MarshalText renders the kind as INIT, AUTHN or AUTHZ.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses INIT, AUTHN or AUTHZ.
func (k *ErrorKind) UnmarshalText(b []byte) error {
	kind, err := ParseErrorKind(string(b))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ParseErrorKind maps the text form back to an ErrorKind.
func ParseErrorKind(s string) (ErrorKind, error) {
	switch s {
	case "INIT":
		return ErrorInit, nil
	case "AUTHN":
		return ErrorAuthN, nil
	case "AUTHZ":
		return ErrorAuthZ, nil
	}
	return 0, fmt.Errorf("auth: unknown error kind %q", s)
}
