package twitchtoken

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ichi0g0y/twitch-fanscore/internal/env"
	"github.com/ichi0g0y/twitch-fanscore/internal/localdb"
	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"go.uber.org/zap"
)

var scopes = []string{
	"user:read:chat",
	"user:write:chat",
	"user:bot",
	"channel:bot",
	"bits:read",
	"channel:read:redemptions",
}

var (
	tokenEndpoint = "https://id.twitch.tv/oauth2/token"
	httpClient    = &http.Client{Timeout: 10 * time.Second}
	now           = time.Now
)

// ErrReauthRequired means the stored token cannot be refreshed and the owner must log in again.
var ErrReauthRequired = errors.New("twitch re-authentication required")

// 期限直前のトークンは無効扱い
const expiryMargin = 60 * time.Second

type tokenResponse struct {
	AccessToken      string   `json:"access_token"`
	RefreshToken     string   `json:"refresh_token"`
	ExpiresIn        int64    `json:"expires_in"`
	Scope            []string `json:"scope"`
	Error            string   `json:"error"`
	ErrorDescription string   `json:"error_description"`
	Message          string   `json:"message"`
}

// IsValid reports whether t can still be used.
func IsValid(t localdb.Token) bool {
	if t.AccessToken == "" {
		return false
	}
	return now().Add(expiryMargin).Unix() < t.ExpiresAt
}

// ExchangeCode trades an OAuth authorization code for a token and stores it.
func ExchangeCode(ctx context.Context, code string) (localdb.Token, error) {
	t, err := requestToken(ctx, url.Values{
		"client_id":     {env.Str(env.Value.ClientID)},
		"client_secret": {env.Str(env.Value.ClientSecret)},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {getCallbackURL()},
	})
	if err != nil {
		return localdb.Token{}, err
	}
	if err := localdb.SaveToken(t); err != nil {
		return localdb.Token{}, err
	}
	logger.Info("Twitch token stored", zap.String("scope", t.Scope))
	return t, nil
}

// Refresh exchanges t's refresh token for a new token and stores it.
func Refresh(ctx context.Context, t localdb.Token) (localdb.Token, error) {
	if t.RefreshToken == "" {
		return localdb.Token{}, ErrReauthRequired
	}
	fresh, err := requestToken(ctx, url.Values{
		"client_id":     {env.Str(env.Value.ClientID)},
		"client_secret": {env.Str(env.Value.ClientSecret)},
		"refresh_token": {t.RefreshToken},
		"grant_type":    {"refresh_token"},
	})
	if err != nil {
		return localdb.Token{}, err
	}
	if err := localdb.SaveToken(fresh); err != nil {
		return localdb.Token{}, err
	}
	logger.Info("Twitch token refreshed")
	return fresh, nil
}

// GetOrRefreshToken returns a usable token, refreshing the stored one when it has expired.
// 戻り値: (token, isValid, error)
func GetOrRefreshToken(ctx context.Context) (localdb.Token, bool, error) {
	t, err := localdb.LatestToken()
	if err != nil {
		return localdb.Token{}, false, err
	}
	if IsValid(t) {
		return t, true, nil
	}

	fresh, err := Refresh(ctx, t)
	if err != nil {
		return t, false, err
	}
	return fresh, IsValid(fresh), nil
}

// Source hands out access tokens to API clients.
type Source struct{}

func (Source) AccessToken(ctx context.Context) (string, error) {
	t, ok, err := GetOrRefreshToken(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get twitch token: %w", err)
	}
	if !ok {
		return "", ErrReauthRequired
	}
	return t.AccessToken, nil
}

func requestToken(ctx context.Context, form url.Values) (localdb.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return localdb.Token{}, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClient.Do(req)
	if err != nil {
		return localdb.Token{}, fmt.Errorf("failed to request token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return localdb.Token{}, fmt.Errorf("failed to read response body: %w", err)
	}

	var result tokenResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return localdb.Token{}, fmt.Errorf("failed to parse response: %w, body: %s", err, string(body))
	}
	if resp.StatusCode != http.StatusOK || result.Error != "" {
		msg := result.ErrorDescription
		if msg == "" {
			msg = result.Message
		}
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			return localdb.Token{}, fmt.Errorf("%w: %s", ErrReauthRequired, msg)
		}
		return localdb.Token{}, fmt.Errorf("twitch token endpoint returned %d: %s", resp.StatusCode, msg)
	}
	if result.AccessToken == "" {
		return localdb.Token{}, errors.New("access_token not found in response")
	}

	return localdb.Token{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		Scope:        strings.Join(result.Scope, " "),
		ExpiresAt:    now().Unix() + result.ExpiresIn,
	}, nil
}

// getCallbackURL はコールバックURLを生成します
func getCallbackURL() string {
	port := 8080
	if env.Value.ServerPort != 0 {
		port = env.Value.ServerPort
	}
	return fmt.Sprintf("http://localhost:%d/callback", port)
}

// GetAuthURL returns the Twitch authorize URL for the configured client.
func GetAuthURL() string {
	return fmt.Sprintf(
		"https://id.twitch.tv/oauth2/authorize?response_type=code&client_id=%s&redirect_uri=%s&scope=%s",
		url.QueryEscape(env.Str(env.Value.ClientID)),
		url.QueryEscape(getCallbackURL()),
		url.QueryEscape(strings.Join(scopes, " ")),
	)
}
