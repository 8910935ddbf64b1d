package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"go.uber.org/zap"
)

const DefaultBaseURL = "https://api.twitch.tv/helix"

var ErrUnauthorized = errors.New("twitch api rejected the access token")

// TokenSource hands out a current user access token.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

type Client struct {
	BaseURL  string
	ClientID string
	Tokens   TokenSource
	HTTP     *http.Client
}

func NewClient(clientID string, tokens TokenSource) *Client {
	return &Client{
		BaseURL:  DefaultBaseURL,
		ClientID: clientID,
		Tokens:   tokens,
		HTTP:     &http.Client{Timeout: 10 * time.Second},
	}
}

// do sends an authenticated Helix request and decodes a JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	token, err := c.Tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Client-Id", c.ClientID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		logger.Error("Twitch API returned error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(bodyBytes)))
		return fmt.Errorf("API request failed with status: %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
