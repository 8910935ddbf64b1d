// Package twitcheventsub receives chat, cheer, redemption and stream events over EventSub.
package twitcheventsub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"github.com/ichi0g0y/twitch-fanscore/internal/twitchapi"
	"github.com/joeyak/go-twitch-eventsub/v3"
	"go.uber.org/zap"
)

// TokenSource hands out the current user access token.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StreamChecker looks up whether the channel is live right now.
type StreamChecker interface {
	GetStreamInfo(ctx context.Context, userID string) (twitchapi.StreamInfo, error)
}

type Options struct {
	ClientID      string
	BroadcasterID string
	// LikeRewardID is the channel points reward counted as a like. Empty disables likes.
	LikeRewardID string
}

var subscriptions = []twitch.EventSubscription{
	twitch.SubChannelChatMessage,
	twitch.SubChannelCheer,
	twitch.SubChannelChannelPointsCustomRewardRedemptionAdd,
	twitch.SubStreamOnline,
	twitch.SubStreamOffline,
}

type Client struct {
	opts    Options
	tokens  TokenSource
	streams StreamChecker
	handler Handler

	mu        sync.Mutex
	client    *twitch.Client
	running   bool
	connected bool
	lastError error
}

func New(opts Options, tokens TokenSource, streams StreamChecker, handler Handler) *Client {
	return &Client{opts: opts, tokens: tokens, streams: streams, handler: handler}
}

// Start connects in the background. Events are dispatched with ctx.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	if c.opts.ClientID == "" || c.opts.BroadcasterID == "" {
		return errors.New("client id and broadcaster id are required")
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to get token: %w", err)
	}

	client := twitch.NewClient()
	client.OnError(func(err error) {
		logger.Error("EventSub error", zap.Error(err))
		c.setState(false, err)
	})
	client.OnWelcome(func(message twitch.WelcomeMessage) {
		logger.Info("EventSub connected successfully")
		c.setState(true, nil)

		// 既に配信中の場合 stream.online は届かない
		go c.checkStreamStatus(ctx)

		c.subscribe(ctx, message.Payload.Session.ID, token)
	})
	client.OnNotification(func(message twitch.NotificationMessage) {
		if message.Payload.Event == nil {
			return
		}
		if err := c.Dispatch(ctx, message.Payload.Subscription.Type, *message.Payload.Event); err != nil {
			logger.Error("Failed to handle EventSub notification",
				zap.String("type", string(message.Payload.Subscription.Type)),
				zap.Error(err))
		}
	})
	client.OnKeepAlive(func(twitch.KeepAliveMessage) {
		c.setState(true, nil)
	})
	client.OnRevoke(func(message twitch.RevokeMessage) {
		logger.Warn("EventSub subscription revoked",
			zap.String("type", string(message.Payload.Subscription.Type)),
			zap.String("status", message.Payload.Subscription.Status))
	})

	c.client = client
	c.running = true
	go func() {
		logger.Info("Connecting to EventSub...")
		if err := client.Connect(); err != nil {
			logger.Error("Failed to connect EventSub", zap.Error(err))
			c.setState(false, err)
		}
	}()
	return nil
}

func (c *Client) subscribe(ctx context.Context, sessionID, token string) {
	// 再接続時はトークンが更新されている可能性がある
	if fresh, err := c.tokens.AccessToken(ctx); err == nil {
		token = fresh
	}
	for _, event := range subscriptions {
		_, err := twitch.SubscribeEvent(twitch.SubscribeRequest{
			SessionID:   sessionID,
			ClientID:    c.opts.ClientID,
			AccessToken: token,
			Event:       event,
			Condition: map[string]string{
				"broadcaster_user_id": c.opts.BroadcasterID,
				"user_id":             c.opts.BroadcasterID,
			},
		})
		if err != nil {
			// 他のイベントの購読は続ける
			logger.Error("Failed to subscribe to event", zap.String("event", string(event)), zap.Error(err))
			continue
		}
		logger.Info("Successfully subscribed to event", zap.String("event", string(event)))
	}
}

func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil && c.running {
		c.client.Close()
	}
	c.running = false
	c.connected = false
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

func (c *Client) setState(connected bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
	c.lastError = err
}
