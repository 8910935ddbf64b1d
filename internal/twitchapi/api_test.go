package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticToken string

func (s staticToken) AccessToken(context.Context) (string, error) { return string(s), nil }

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("client-1", staticToken("tok"))
	c.BaseURL = srv.URL
	return c
}

func TestSendChatMessage(t *testing.T) {
	var got sendChatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/messages" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" || r.Header.Get("Client-Id") != "client-1" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"data":[{"message_id":"m1","is_sent":true}]}`))
	})

	if err := c.SendChatMessage(context.Background(), "b1", "s1", "hello"); err != nil {
		t.Fatalf("SendChatMessage failed: %v", err)
	}
	if got.BroadcasterID != "b1" || got.SenderID != "s1" || got.Message != "hello" {
		t.Fatalf("unexpected body: %+v", got)
	}
}

func TestSendChatMessage_Dropped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"message_id":"","is_sent":false,"drop_reason":{"code":"msg_duplicate","message":"duplicate"}}]}`))
	})

	err := c.SendChatMessage(context.Background(), "b1", "s1", "hello")
	if !errors.Is(err, ErrMessageDropped) {
		t.Fatalf("unexpected error: got=%v want=%v", err, ErrMessageDropped)
	}
}

func TestSendChatMessage_Unauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := c.SendChatMessage(context.Background(), "b1", "s1", "hello")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unexpected error: got=%v want=%v", err, ErrUnauthorized)
	}
}

func TestGetStreamInfo(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("user_id") == "live" {
			_, _ = w.Write([]byte(`{"data":[{"id":"s42","viewer_count":7,"started_at":"2024-05-01T12:00:00Z"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	info, err := c.GetStreamInfo(context.Background(), "live")
	if err != nil {
		t.Fatalf("GetStreamInfo failed: %v", err)
	}
	if !info.IsLive || info.ID != "s42" || info.ViewerCount != 7 {
		t.Fatalf("unexpected info: %+v", info)
	}

	info, err = c.GetStreamInfo(context.Background(), "off")
	if err != nil {
		t.Fatalf("GetStreamInfo failed: %v", err)
	}
	if info.IsLive {
		t.Fatalf("offline stream should not be live")
	}
}
