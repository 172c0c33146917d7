package config

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// deviceClientID is the OAuth client id used for the device-authorization
// login flow.
const deviceClientID = "app_EMoamEEZ73f0CkXaXp7hrann"

// deviceOAuthConfig is the oauth2.Config driving the RFC 8628 device
// grant: DeviceAuth requests a user code, DeviceAccessToken polls for
// completion.
var deviceOAuthConfig = oauth2.Config{
	ClientID: deviceClientID,
	Endpoint: oauth2.Endpoint{
		DeviceAuthURL: "https://auth.openai.com/oauth/device/code",
		TokenURL:      "https://auth.openai.com/oauth/token",
	},
}

// AuthTokens is the persisted device-login credential set.
type AuthTokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func authFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ghostclaw", "auth.json"), nil
}

// LoadAuthTokens reads the persisted device-login tokens, if any.
func LoadAuthTokens() (*AuthTokens, error) {
	path, err := authFilePath()
	if err != nil {
		return nil, err
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var t AuthTokens
	if err := json.Unmarshal(buf, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveAuthTokens atomically persists tokens to ~/.ghostclaw/auth.json at
// 0600, matching the pairing token store's tmp-file-and-rename idiom.
func SaveAuthTokens(t *AuthTokens) error {
	path, err := authFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	buf, err := json.Marshal(t)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// NeedsRefresh reports whether the access token will expire within the
// next 60 seconds.
func (t *AuthTokens) NeedsRefresh() bool {
	if t == nil {
		return true
	}
	return time.Now().Add(60 * time.Second).After(t.ExpiresAt)
}

func withHTTPClient(ctx context.Context, httpClient *http.Client) context.Context {
	if httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, httpClient)
}

// StartDeviceLogin requests a device code the operator can use to
// authorize this daemon in a browser.
func StartDeviceLogin(ctx context.Context, httpClient *http.Client) (*oauth2.DeviceAuthResponse, error) {
	return deviceOAuthConfig.DeviceAuth(withHTTPClient(ctx, httpClient))
}

// PollDeviceLogin exchanges a device authorization response for tokens,
// blocking (and internally polling at the server-specified interval)
// until the operator completes the browser authorization step, the
// device code expires, or ctx is cancelled.
func PollDeviceLogin(ctx context.Context, httpClient *http.Client, da *oauth2.DeviceAuthResponse) (*AuthTokens, error) {
	token, err := deviceOAuthConfig.DeviceAccessToken(withHTTPClient(ctx, httpClient), da)
	if err != nil {
		return nil, err
	}
	return fromOAuth2Token(token), nil
}

// RefreshAuthTokens exchanges a refresh token for a fresh access token.
func RefreshAuthTokens(ctx context.Context, httpClient *http.Client, t *AuthTokens) (*AuthTokens, error) {
	src := deviceOAuthConfig.TokenSource(withHTTPClient(ctx, httpClient), &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	})
	token, err := src.Token()
	if err != nil {
		return nil, err
	}
	return fromOAuth2Token(token), nil
}

func fromOAuth2Token(token *oauth2.Token) *AuthTokens {
	return &AuthTokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
}
