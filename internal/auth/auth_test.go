package auth

import (
	"strings"
	"testing"
	"time"
)

const (
	testKey    = "devkey"
	testSecret = "devsecret-devsecret-devsecret-32"
)

func TestEnabled(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		secret string
		want   bool
	}{
		{"both set", testKey, testSecret, true},
		{"missing key", "", testSecret, false},
		{"missing secret", testKey, "", false},
		{"neither", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.key, tt.secret, 0, 0)
			if got := m.Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMintJoinToken(t *testing.T) {
	m := New(testKey, testSecret, time.Hour, 24*time.Hour)

	token, expiresAt, err := m.MintJoinToken("demo", "alice", 10*time.Minute)
	if err != nil {
		t.Fatalf("MintJoinToken failed: %v", err)
	}
	if len(strings.Split(token, ".")) != 3 {
		t.Errorf("token %q is not a JWT", token)
	}

	wantExpiry := time.Now().Add(10 * time.Minute)
	if diff := expiresAt.Sub(wantExpiry); diff < -time.Minute || diff > time.Minute {
		t.Errorf("expiresAt = %v, want ~%v", expiresAt, wantExpiry)
	}
}

func TestMintJoinTokenDefaultsAndClamping(t *testing.T) {
	m := New(testKey, testSecret, time.Hour, 2*time.Hour)

	// Zero expiry falls back to the default.
	_, expiresAt, err := m.MintJoinToken("demo", "alice", 0)
	if err != nil {
		t.Fatalf("MintJoinToken failed: %v", err)
	}
	if diff := time.Until(expiresAt) - time.Hour; diff < -time.Minute || diff > time.Minute {
		t.Errorf("default expiry = %v from now", time.Until(expiresAt))
	}

	// Oversized expiry is clamped to the maximum.
	_, expiresAt, err = m.MintJoinToken("demo", "alice", 100*time.Hour)
	if err != nil {
		t.Fatalf("MintJoinToken failed: %v", err)
	}
	if diff := time.Until(expiresAt) - 2*time.Hour; diff < -time.Minute || diff > time.Minute {
		t.Errorf("clamped expiry = %v from now", time.Until(expiresAt))
	}
}

func TestMintJoinTokenErrors(t *testing.T) {
	m := New(testKey, testSecret, 0, 0)

	if _, _, err := m.MintJoinToken("", "alice", 0); err == nil {
		t.Error("accepted empty room")
	}
	if _, _, err := m.MintJoinToken("demo", "", 0); err == nil {
		t.Error("accepted empty identity")
	}

	disabled := New("", "", 0, 0)
	if _, _, err := disabled.MintJoinToken("demo", "alice", 0); err == nil {
		t.Error("minted token without credentials")
	}
}
