package config

import (
	"errors"
	"time"
)

// ErrMissingRequestor is returned by Settings.Validate when the requestor
// credentials needed by the entitlement engine are absent.
var ErrMissingRequestor = errors.New("requestor id and signed requestor id are required")

// ErrMissingSigningKey is returned by Settings.Validate without TOKEN_SIGNING_KEY.
var ErrMissingSigningKey = errors.New("token signing key is required")

// Settings is the process configuration resolved from the environment.
type Settings struct {
	Port      string
	LogLevel  string
	LogFormat string

	RequestorID       string
	SignedRequestorID string
	EngineEndpoints   []string

	CatalogPath        string
	TokenSigningKey    string
	TokenTTL           time.Duration
	PublicBaseURL      string
	LoginCompletionURL string

	AuthzRate  float64
	AuthzBurst int

	APIRateLimit          int
	LogoutRedirectTimeout time.Duration
}

// FromEnv builds Settings from environment variables, applying defaults for
// everything except the requestor credentials.
func FromEnv() Settings {
	port := GetEnv("PORT", "8080")
	base := GetEnv("PUBLIC_BASE_URL", "http://localhost:"+port)
	return Settings{
		Port:      port,
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),

		RequestorID:       GetEnv("REQUESTOR_ID", ""),
		SignedRequestorID: GetEnv("SIGNED_REQUESTOR_ID", ""),
		EngineEndpoints:   GetEnvList("ENGINE_ENDPOINTS", []string{base + "/engine"}),

		CatalogPath:        GetEnv("CATALOG_PATH", "catalog.yaml"),
		TokenSigningKey:    GetEnv("TOKEN_SIGNING_KEY", ""),
		TokenTTL:           GetEnvDuration("TOKEN_TTL", 7*time.Minute),
		PublicBaseURL:      base,
		LoginCompletionURL: GetEnv("LOGIN_COMPLETION_URL", base+"/engine/completed"),

		AuthzRate:  GetEnvFloat("AUTHZ_RATE", 5),
		AuthzBurst: GetEnvInt("AUTHZ_BURST", 10),

		APIRateLimit:          GetEnvInt("API_RATE_LIMIT", 120),
		LogoutRedirectTimeout: GetEnvDuration("LOGOUT_REDIRECT_TIMEOUT", 10*time.Second),
	}
}

// Validate reports settings the service cannot start without.
func (s Settings) Validate() error {
	if s.RequestorID == "" || s.SignedRequestorID == "" {
		return ErrMissingRequestor
	}
	if s.TokenSigningKey == "" {
		return ErrMissingSigningKey
	}
	return nil
}
