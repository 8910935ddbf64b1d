package twitcheventsub

import (
	"context"
	"testing"
	"time"

	"github.com/ichi0g0y/twitch-fanscore/internal/bot"
	"github.com/ichi0g0y/twitch-fanscore/internal/status"
	"github.com/joeyak/go-twitch-eventsub/v3"
)

type gift struct {
	userID, nickname, tag string
	amount                int
}

type recordingHandler struct {
	chats []bot.ChatMessage
	gifts []gift
	likes []gift
}

func (h *recordingHandler) HandleChat(_ context.Context, msg bot.ChatMessage) {
	h.chats = append(h.chats, msg)
}

func (h *recordingHandler) HandleGift(_ context.Context, userID, nickname, tag string, amount int) {
	h.gifts = append(h.gifts, gift{userID, nickname, tag, amount})
}

func (h *recordingHandler) HandleLike(_ context.Context, userID, nickname, tag string) {
	h.likes = append(h.likes, gift{userID: userID, nickname: nickname, tag: tag})
}

func newTestClient() (*Client, *recordingHandler) {
	h := &recordingHandler{}
	c := New(Options{ClientID: "cid", BroadcasterID: "100", LikeRewardID: "like-reward"}, nil, nil, h)
	return c, h
}

func TestDispatch_ChatMessage(t *testing.T) {
	c, h := newTestClient()
	ctx := context.Background()

	raw := []byte(`{"broadcaster_user_id":"100","chatter_user_id":"200","chatter_user_name":"Alice","chatter_user_login":"alice","message_id":"m1","message":{"text":"!score","fragments":[]}}`)
	if err := c.Dispatch(ctx, twitch.SubChannelChatMessage, raw); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	owner := []byte(`{"chatter_user_id":"100","chatter_user_name":"Owner","chatter_user_login":"owner","message":{"text":"!quiz"}}`)
	if err := c.Dispatch(ctx, twitch.SubChannelChatMessage, owner); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if len(h.chats) != 2 {
		t.Fatalf("unexpected chat count: got=%d want=2", len(h.chats))
	}
	want := bot.ChatMessage{UserID: "200", Nickname: "Alice", Tag: "alice", Text: "!score"}
	if h.chats[0] != want {
		t.Fatalf("unexpected chat: got=%+v want=%+v", h.chats[0], want)
	}
	if !h.chats[1].IsAdmin {
		t.Fatalf("broadcaster chat should be admin")
	}
}

func TestDispatch_CheerAndLike(t *testing.T) {
	c, h := newTestClient()
	ctx := context.Background()

	cheer := []byte(`{"is_anonymous":false,"user_id":"300","user_name":"Bob","user_login":"bob","bits":250,"message":"gg"}`)
	anonymous := []byte(`{"is_anonymous":true,"user_id":"","bits":100}`)
	like := []byte(`{"id":"r1","user_id":"400","user_name":"Carol","user_login":"carol","reward":{"id":"like-reward","title":"Like","cost":10}}`)
	other := []byte(`{"id":"r2","user_id":"400","user_name":"Carol","reward":{"id":"other","title":"Hydrate","cost":100}}`)

	for _, tc := range []struct {
		typ twitch.EventSubscription
		raw []byte
	}{
		{twitch.SubChannelCheer, cheer},
		{twitch.SubChannelCheer, anonymous},
		{twitch.SubChannelChannelPointsCustomRewardRedemptionAdd, like},
		{twitch.SubChannelChannelPointsCustomRewardRedemptionAdd, other},
	} {
		if err := c.Dispatch(ctx, tc.typ, tc.raw); err != nil {
			t.Fatalf("Dispatch(%s) failed: %v", tc.typ, err)
		}
	}

	if len(h.gifts) != 1 || h.gifts[0] != (gift{"300", "Bob", "bob", 250}) {
		t.Fatalf("unexpected gifts: %+v", h.gifts)
	}
	if len(h.likes) != 1 || h.likes[0] != (gift{userID: "400", nickname: "Carol", tag: "carol"}) {
		t.Fatalf("unexpected likes: %+v", h.likes)
	}
}

func TestDispatch_InvalidPayload(t *testing.T) {
	c, h := newTestClient()
	if err := c.Dispatch(context.Background(), twitch.SubChannelChatMessage, []byte(`{`)); err == nil {
		t.Fatalf("expected parse error")
	}
	if len(h.chats) != 0 {
		t.Fatalf("handler should not be called")
	}
}

func TestDispatch_StreamOnlineOffline(t *testing.T) {
	status.Reset()
	t.Cleanup(status.Reset)
	c, _ := newTestClient()
	ctx := context.Background()

	online := []byte(`{"id":"9001","broadcaster_user_id":"100","broadcaster_user_name":"Owner","type":"live","started_at":"2024-05-01T12:00:00Z"}`)
	if err := c.Dispatch(ctx, twitch.SubStreamOnline, online); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	st := status.GetStreamStatus()
	if !st.IsLive || st.LiveID != "9001" {
		t.Fatalf("unexpected status: %+v", st)
	}
	if !st.StartedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected started_at: %v", st.StartedAt)
	}

	if err := c.Dispatch(ctx, twitch.SubStreamOffline, []byte(`{"broadcaster_user_id":"100"}`)); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if status.GetStreamStatus().IsLive {
		t.Fatalf("stream should be offline")
	}
}

func TestSyncStreamStatus(t *testing.T) {
	status.Reset()
	t.Cleanup(status.Reset)

	syncStreamStatus(true, "42", time.Time{})
	if got := status.CurrentLiveID(); got != "42" {
		t.Fatalf("unexpected live id: got=%q want=%q", got, "42")
	}

	// 既に配信中なら上書きしない
	syncStreamStatus(true, "43", time.Time{})
	if got := status.CurrentLiveID(); got != "42" {
		t.Fatalf("live id overwritten: got=%q want=%q", got, "42")
	}

	syncStreamStatus(false, "", time.Time{})
	if status.GetStreamStatus().IsLive {
		t.Fatalf("stream should be offline")
	}
}
