package twitcheventsub

import (
	"context"
	"time"

	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"github.com/ichi0g0y/twitch-fanscore/internal/status"
	"github.com/joeyak/go-twitch-eventsub/v3"
	"go.uber.org/zap"
)

func handleStreamOnline(message twitch.EventStreamOnline) {
	logger.Info("Stream went online",
		zap.String("stream_id", message.Id),
		zap.String("broadcaster_id", message.Broadcaster.BroadcasterUserId),
		zap.String("broadcaster_name", message.Broadcaster.BroadcasterUserName),
		zap.Time("started_at", message.StartedAt))
	status.SetStreamOnline(message.Id, message.StartedAt)
}

func handleStreamOffline(message twitch.EventStreamOffline) {
	logger.Info("Stream went offline",
		zap.String("broadcaster_id", message.BroadcasterUserId),
		zap.String("broadcaster_name", message.BroadcasterUserName))
	status.SetStreamOffline()
}

// streamCheckDelay lets subscriptions go out before the API call.
var streamCheckDelay = time.Second

// checkStreamStatus syncs the live status with the API after connecting.
func (c *Client) checkStreamStatus(ctx context.Context) {
	if c.streams == nil {
		return
	}
	select {
	case <-ctx.Done():
		return
	case <-time.After(streamCheckDelay):
	}

	info, err := c.streams.GetStreamInfo(ctx, c.opts.BroadcasterID)
	if err != nil {
		logger.Error("Failed to get stream status on EventSub connect", zap.Error(err))
		return
	}
	syncStreamStatus(info.IsLive, info.ID, info.StartedAt)
}

func syncStreamStatus(live bool, id string, startedAt time.Time) {
	current := status.GetStreamStatus()
	switch {
	case live && !current.IsLive:
		logger.Info("Stream is currently LIVE (checked on EventSub connect)", zap.String("stream_id", id))
		status.SetStreamOnline(id, startedAt)
	case !live && current.IsLive:
		logger.Info("Stream is OFFLINE (checked on EventSub connect)")
		status.SetStreamOffline()
	}
}
