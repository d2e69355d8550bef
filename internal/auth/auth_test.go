package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestLoadToken_Missing(t *testing.T) {
	_, err := loadToken(filepath.Join(t.TempDir(), "token.json"))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoCredentials))
}

func TestLoadOAuthConfig_Missing(t *testing.T) {
	_, err := loadOAuthConfig(filepath.Join(t.TempDir(), "credentials.json"))
	assert.True(t, eris.Is(err, ErrNoCredentials))
}

func TestLoadToken_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"client_id":"x"}`), 0o600))

	_, err := loadToken(path)
	assert.True(t, eris.Is(err, ErrNoCredentials))
}

func TestSaveToken_Reloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	expiry := time.Date(2026, 3, 1, 12, 30, 0, 123456000, time.UTC)
	cfg := &oauth2.Config{ClientID: "cid", Endpoint: oauth2.Endpoint{TokenURL: "https://oauth2.example/token"}}

	require.NoError(t, saveToken(path, &oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: expiry}, cfg))

	tok, err := loadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "a", tok.AccessToken)
	assert.Equal(t, "r", tok.RefreshToken)
	assert.True(t, expiry.Equal(tok.Expiry))
}

func TestParseExpiry(t *testing.T) {
	assert.True(t, parseExpiry("").IsZero())
	assert.True(t, parseExpiry("garbage").IsZero())
	assert.Equal(t, 2025, parseExpiry("2025-11-02T08:00:00Z").Year())
	assert.Equal(t, 2025, parseExpiry("2025-11-02T08:00:00.123456Z").Year())
}
