// Package token issues and verifies the short-lived media tokens handed out
// on a successful authorization. A downstream video service verifies them
// with the same signing key.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTTL is the lifetime of a media token.
const DefaultTTL = 7 * time.Minute

const issuerName = "tve-auth"

var (
	// ErrInvalidToken is returned by Verify for a malformed, forged or
	// foreign token.
	ErrInvalidToken = errors.New("token: invalid")

	// ErrExpiredToken is returned by Verify once a token outlived its TTL.
	ErrExpiredToken = errors.New("token: expired")

	// ErrNoSigningKey is returned by NewIssuer without a key.
	ErrNoSigningKey = errors.New("token: signing key is required")
)

// Claims binds a token to one resource, provider and requestor.
type Claims struct {
	ResourceID  string `json:"rid"`
	ProviderID  string `json:"mvpd"`
	RequestorID string `json:"requestor"`
	jwt.RegisteredClaims
}

// Issuer signs media tokens with HS256.
type Issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewIssuer returns an Issuer. A non-positive ttl uses DefaultTTL.
func NewIssuer(key []byte, ttl time.Duration) (*Issuer, error) {
	if len(key) == 0 {
		return nil, ErrNoSigningKey
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{key: append([]byte(nil), key...), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for resourceID. subject identifies the user session.
func (i *Issuer) Issue(requestorID, providerID, resourceID, subject string) (string, Claims, error) {
	now := i.now()
	claims := Claims{
		ResourceID:  resourceID,
		ProviderID:  providerID,
		RequestorID: requestorID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuerName,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{requestorID},
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", Claims{}, fmt.Errorf("token: sign: %w", err)
	}
	return signed, claims, nil
}

// Verify checks the signature and lifetime of raw and returns its claims.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuerName),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid || claims.ResourceID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TTL returns the configured token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}
