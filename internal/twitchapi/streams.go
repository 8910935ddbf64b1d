package twitchapi

import (
	"context"
	"net/url"
	"time"
)

// StreamInfo contains stream information
type StreamInfo struct {
	ID          string
	IsLive      bool
	ViewerCount int
	StartedAt   time.Time
}

// GetStreamInfo retrieves the current stream of userID. IsLive is false when offline.
func (c *Client) GetStreamInfo(ctx context.Context, userID string) (StreamInfo, error) {
	var result struct {
		Data []struct {
			ID          string    `json:"id"`
			ViewerCount int       `json:"viewer_count"`
			StartedAt   time.Time `json:"started_at"`
		} `json:"data"`
	}
	if err := c.do(ctx, "GET", "/streams?user_id="+url.QueryEscape(userID), nil, &result); err != nil {
		return StreamInfo{}, err
	}

	if len(result.Data) == 0 {
		return StreamInfo{}, nil
	}
	d := result.Data[0]
	return StreamInfo{ID: d.ID, IsLive: true, ViewerCount: d.ViewerCount, StartedAt: d.StartedAt}, nil
}
