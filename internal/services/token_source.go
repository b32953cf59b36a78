package services

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/benmeehan/ak-mqtt/internal/metrics"
	"github.com/benmeehan/ak-mqtt/pkg/identity"
	"github.com/benmeehan/ak-mqtt/pkg/jwt"
)

// TokenSource holds the token currently presented as the broker password.
// Renew may run on the coordination loop while paho reads Password from its own goroutines.
type TokenSource struct {
	Issuer      jwt.TokenIssuerInterface
	Credentials *identity.Credentials
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger

	current atomic.Pointer[jwt.AuthToken]
}

// NewTokenSource creates a TokenSource. No token exists until Renew succeeds.
func NewTokenSource(issuer jwt.TokenIssuerInterface, creds *identity.Credentials, m *metrics.Metrics, logger zerolog.Logger) *TokenSource {
	return &TokenSource{
		Issuer:      issuer,
		Credentials: creds,
		Metrics:     m,
		Logger:      logger,
	}
}

// Renew issues a fresh token and makes it current. On failure the previous token stays in place.
func (ts *TokenSource) Renew() (*jwt.AuthToken, error) {
	token, err := ts.Issuer.Issue(ts.Credentials)
	ts.Metrics.ObserveTokenRenewal(err)
	if err != nil {
		return nil, fmt.Errorf("issue token for %s: %w", ts.Credentials.DeviceID, err)
	}

	ts.current.Store(token)
	ts.Metrics.SetTokenExpiry(token.ExpiresAt)
	ts.Logger.Info().
		Str("device_id", ts.Credentials.DeviceID).
		Time("issued_at", token.IssuedAt).
		Time("expires_at", token.ExpiresAt).
		Msg("Issued authentication token")

	return token, nil
}

// Current returns the current token, or nil before the first successful Renew.
func (ts *TokenSource) Current() *jwt.AuthToken {
	return ts.current.Load()
}

// Password returns the current token value. It is handed to the transport as its password provider.
func (ts *TokenSource) Password() string {
	token := ts.current.Load()
	if token == nil {
		ts.Logger.Error().Err(ErrNoToken).Msg("Password requested before token issuance")
		return ""
	}
	return token.Value
}
