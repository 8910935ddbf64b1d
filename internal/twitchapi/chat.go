package twitchapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"go.uber.org/zap"
)

// ErrMessageDropped means Twitch accepted the request but did not deliver the message.
var ErrMessageDropped = errors.New("chat message was dropped")

type sendChatRequest struct {
	BroadcasterID string `json:"broadcaster_id"`
	SenderID      string `json:"sender_id"`
	Message       string `json:"message"`
}

type sendChatResponse struct {
	Data []struct {
		MessageID  string `json:"message_id"`
		IsSent     bool   `json:"is_sent"`
		DropReason *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"drop_reason"`
	} `json:"data"`
}

// SendChatMessage posts text to the broadcaster's chat as senderID.
func (c *Client) SendChatMessage(ctx context.Context, broadcasterID, senderID, text string) error {
	var out sendChatResponse
	err := c.do(ctx, "POST", "/chat/messages", sendChatRequest{
		BroadcasterID: broadcasterID,
		SenderID:      senderID,
		Message:       text,
	}, &out)
	if err != nil {
		return fmt.Errorf("failed to send chat message: %w", err)
	}

	if len(out.Data) > 0 && !out.Data[0].IsSent {
		reason := ""
		if dr := out.Data[0].DropReason; dr != nil {
			reason = dr.Code + ": " + dr.Message
		}
		logger.Warn("Chat message dropped", zap.String("reason", reason))
		return fmt.Errorf("%w: %s", ErrMessageDropped, reason)
	}
	return nil
}
