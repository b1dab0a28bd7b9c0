// Package auth mints room join tokens from an API key/secret pair.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"
)

// Manager issues join tokens with bounded lifetimes.
type Manager struct {
	apiKey    string
	apiSecret string

	defaultExpiration time.Duration
	maxExpiration     time.Duration
}

// New creates a token manager. Zero durations fall back to 1h default and
// 24h max.
func New(apiKey, apiSecret string, defaultExpiration, maxExpiration time.Duration) *Manager {
	if defaultExpiration <= 0 {
		defaultExpiration = time.Hour
	}
	if maxExpiration <= 0 {
		maxExpiration = 24 * time.Hour
	}
	return &Manager{
		apiKey:            apiKey,
		apiSecret:         apiSecret,
		defaultExpiration: defaultExpiration,
		maxExpiration:     maxExpiration,
	}
}

// Enabled reports whether credentials are configured.
func (m *Manager) Enabled() bool {
	return m.apiKey != "" && m.apiSecret != ""
}

// MintJoinToken creates a join token for identity in roomName. expiresIn is
// clamped to the configured maximum; zero means the default.
func (m *Manager) MintJoinToken(roomName, identity string, expiresIn time.Duration) (string, time.Time, error) {
	if !m.Enabled() {
		return "", time.Time{}, errors.New("api key and secret not configured")
	}
	if roomName == "" || identity == "" {
		return "", time.Time{}, errors.New("room and identity are required")
	}

	expiration := expiresIn
	if expiration <= 0 {
		expiration = m.defaultExpiration
	}
	if expiration > m.maxExpiration {
		expiration = m.maxExpiration
	}

	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     roomName,
	}
	token := auth.NewAccessToken(m.apiKey, m.apiSecret).
		SetVideoGrant(grant).
		SetIdentity(identity).
		SetValidFor(expiration)

	jwt, err := token.ToJWT()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to mint join token: %w", err)
	}
	return jwt, time.Now().Add(expiration), nil
}
