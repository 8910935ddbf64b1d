package twitcheventsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ichi0g0y/twitch-fanscore/internal/bot"
	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"github.com/joeyak/go-twitch-eventsub/v3"
	"go.uber.org/zap"
)

// Handler receives the viewer activity extracted from notifications.
type Handler interface {
	HandleChat(ctx context.Context, msg bot.ChatMessage)
	HandleGift(ctx context.Context, userID, nickname, tag string, amount int)
	HandleLike(ctx context.Context, userID, nickname, tag string)
}

// chatterLogin carries the login name, used as the viewer tag.
type chatterLogin struct {
	ChatterUserLogin string `json:"chatter_user_login"`
}

// Dispatch decodes one notification payload and forwards it.
func (c *Client) Dispatch(ctx context.Context, typ twitch.EventSubscription, raw []byte) error {
	logger.Debug("Received EventSub notification", zap.String("type", string(typ)), zap.String("data", string(raw)))

	switch typ {
	case twitch.SubChannelChatMessage:
		var evt twitch.EventChannelChatMessage
		if err := json.Unmarshal(raw, &evt); err != nil {
			return fmt.Errorf("failed to parse channel chat message event: %w", err)
		}
		var login chatterLogin
		_ = json.Unmarshal(raw, &login)
		c.handler.HandleChat(ctx, bot.ChatMessage{
			UserID:   evt.Chatter.ChatterUserId,
			Nickname: evt.Chatter.ChatterUserName,
			Tag:      login.ChatterUserLogin,
			Text:     evt.Message.Text,
			IsAdmin:  evt.Chatter.ChatterUserId == c.opts.BroadcasterID,
		})

	case twitch.SubChannelCheer:
		var evt twitch.EventChannelCheer
		if err := json.Unmarshal(raw, &evt); err != nil {
			return fmt.Errorf("failed to parse cheer event: %w", err)
		}
		if evt.User.UserID == "" {
			// 匿名 cheer は誰にも加算しない
			logger.Debug("Anonymous cheer ignored", zap.Int("bits", int(evt.Bits)))
			return nil
		}
		c.handler.HandleGift(ctx, evt.User.UserID, evt.User.UserName, evt.User.UserLogin, int(evt.Bits))

	case twitch.SubChannelChannelPointsCustomRewardRedemptionAdd:
		var evt twitch.EventChannelChannelPointsCustomRewardRedemptionAdd
		if err := json.Unmarshal(raw, &evt); err != nil {
			return fmt.Errorf("failed to parse channel points custom reward event: %w", err)
		}
		if c.opts.LikeRewardID == "" || evt.Reward.ID != c.opts.LikeRewardID {
			logger.Debug("Reward is not the like reward",
				zap.String("reward_id", evt.Reward.ID),
				zap.String("reward_title", evt.Reward.Title))
			return nil
		}
		c.handler.HandleLike(ctx, evt.User.UserID, evt.User.UserName, evt.User.UserLogin)

	case twitch.SubStreamOnline:
		var evt twitch.EventStreamOnline
		if err := json.Unmarshal(raw, &evt); err != nil {
			return fmt.Errorf("failed to parse stream online event: %w", err)
		}
		handleStreamOnline(evt)

	case twitch.SubStreamOffline:
		var evt twitch.EventStreamOffline
		if err := json.Unmarshal(raw, &evt); err != nil {
			return fmt.Errorf("failed to parse stream offline event: %w", err)
		}
		handleStreamOffline(evt)

	default:
		logger.Debug("Unhandled EventSub notification", zap.String("type", string(typ)))
	}
	return nil
}
