package main

import (
	"context"
	"errors"
	"time"

	"github.com/ichi0g0y/twitch-fanscore/internal/env"
	"github.com/ichi0g0y/twitch-fanscore/internal/localdb"
	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"github.com/ichi0g0y/twitch-fanscore/internal/twitchapi"
	"github.com/ichi0g0y/twitch-fanscore/internal/twitcheventsub"
	"github.com/ichi0g0y/twitch-fanscore/internal/twitchtoken"
	"go.uber.org/zap"
)

const tokenCheckInterval = 10 * time.Minute

// startTwitchBackground connects EventSub when credentials and a token exist.
// Without a token the server still runs; authorize via /auth and restart.
func startTwitchBackground(ctx context.Context, api *twitchapi.Client, handler twitcheventsub.Handler) *twitcheventsub.Client {
	clientID := env.Str(env.Value.ClientID)
	broadcaster := env.Str(env.Value.TwitchUserID)
	if clientID == "" || env.Str(env.Value.ClientSecret) == "" || broadcaster == "" {
		logger.Warn("Twitch credentials not configured, EventSub disabled")
		return nil
	}

	if _, valid, err := twitchtoken.GetOrRefreshToken(ctx); err != nil || !valid {
		if errors.Is(err, localdb.ErrNoToken) {
			logger.Warn("No Twitch token yet, open /auth to authorize")
		} else {
			logger.Warn("Twitch token unavailable, open /auth to authorize", zap.Error(err))
		}
		return nil
	}

	client := twitcheventsub.New(twitcheventsub.Options{
		ClientID:      clientID,
		BroadcasterID: broadcaster,
		LikeRewardID:  env.Str(env.Value.LikeRewardID),
	}, twitchtoken.Source{}, api, handler)
	if err := client.Start(ctx); err != nil {
		logger.Error("Failed to start EventSub", zap.Error(err))
		return nil
	}

	go refreshTokenPeriodically(ctx)
	return client
}

// refreshTokenPeriodically keeps the stored token fresh between API calls.
func refreshTokenPeriodically(ctx context.Context) {
	ticker := time.NewTicker(tokenCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping token refresh goroutine")
			return
		case <-ticker.C:
			if _, _, err := twitchtoken.GetOrRefreshToken(ctx); err != nil {
				if errors.Is(err, twitchtoken.ErrReauthRequired) {
					logger.Error("Twitch token can no longer be refreshed, open /auth to authorize again")
					return
				}
				logger.Warn("Failed to refresh Twitch token", zap.Error(err))
			}
		}
	}
}
