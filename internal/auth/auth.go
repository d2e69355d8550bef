// Package auth provides Google OAuth2 authentication for mailorders.
//
// Each account directory holds a credentials.json (OAuth client) and a
// token.json in the authorized-user format written by Google's tooling, so
// tokens created by other clients keep working.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// ErrNoCredentials means an account has no usable credentials or token.
// A sync run cannot reach the message source without them.
var ErrNoCredentials = eris.New("no gmail credentials")

// Scopes requested for the account. Order events are only read.
var Scopes = []string{gmail.GmailReadonlyScope}

// storedToken is the token.json layout.
type storedToken struct {
	Token        string   `json:"token"`
	RefreshToken string   `json:"refresh_token"`
	TokenURI     string   `json:"token_uri"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes"`
	Expiry       string   `json:"expiry"`
}

const expiryLayout = "2006-01-02T15:04:05.999999Z"

// LoadGmailService returns an authenticated Gmail API service for the account
// whose credentials.json is at credentialsPath.
func LoadGmailService(ctx context.Context, credentialsPath string) (*gmail.Service, error) {
	client, err := getClient(ctx, credentialsPath)
	if err != nil {
		return nil, eris.Wrap(err, "get oauth client")
	}
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, eris.Wrap(err, "create gmail service")
	}
	return svc, nil
}

// getClient returns an HTTP client whose token refreshes itself. A refreshed
// token is written back to token.json.
func getClient(ctx context.Context, credentialsPath string) (*http.Client, error) {
	config, err := loadOAuthConfig(credentialsPath)
	if err != nil {
		return nil, err
	}

	tokenPath := filepath.Join(filepath.Dir(credentialsPath), "token.json")
	token, err := loadToken(tokenPath)
	if err != nil {
		return nil, err
	}

	ts := config.TokenSource(ctx, token)
	fresh, err := ts.Token()
	if err != nil {
		return nil, eris.Wrap(err, "refresh token")
	}

	if fresh.AccessToken != token.AccessToken {
		if err := saveToken(tokenPath, fresh, config); err != nil {
			zap.L().Warn("auth: could not save refreshed token",
				zap.String("path", tokenPath),
				zap.Error(err),
			)
		}
	}

	return oauth2.NewClient(ctx, ts), nil
}

func loadOAuthConfig(credentialsPath string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(ErrNoCredentials, "missing %s", credentialsPath)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "read credentials from %s", credentialsPath)
	}

	config, err := google.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, eris.Wrap(err, "parse credentials")
	}
	return config, nil
}

func loadToken(tokenPath string) (*oauth2.Token, error) {
	data, err := os.ReadFile(tokenPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(ErrNoCredentials, "missing %s", tokenPath)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "read token from %s", tokenPath)
	}

	var st storedToken
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, eris.Wrapf(err, "parse token %s", tokenPath)
	}
	if st.Token == "" && st.RefreshToken == "" {
		return nil, eris.Wrapf(ErrNoCredentials, "empty token in %s", tokenPath)
	}

	return &oauth2.Token{
		AccessToken:  st.Token,
		RefreshToken: st.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       parseExpiry(st.Expiry),
	}, nil
}

// parseExpiry accepts the microsecond timestamps Google's tooling writes as
// well as plain RFC 3339. An unparseable expiry forces a refresh.
func parseExpiry(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{expiryLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func saveToken(tokenPath string, token *oauth2.Token, config *oauth2.Config) error {
	st := storedToken{
		Token:        token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenURI:     config.Endpoint.TokenURL,
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Scopes:       Scopes,
		Expiry:       token.Expiry.UTC().Format(expiryLayout),
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return eris.Wrap(err, "encode token")
	}
	if err := os.WriteFile(tokenPath, data, 0o600); err != nil {
		return eris.Wrap(err, "write token")
	}
	return nil
}
