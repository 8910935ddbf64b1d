package twitchtoken

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ichi0g0y/twitch-fanscore/internal/localdb"
)

func setupTokenDB(t *testing.T) {
	t.Helper()
	if localdb.DBClient != nil {
		_ = localdb.DBClient.Close()
		localdb.DBClient = nil
	}
	db, err := localdb.SetupDB(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatalf("SetupDB failed: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
		localdb.DBClient = nil
	})
}

func useClock(t *testing.T, at time.Time) {
	t.Helper()
	original := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = original })
}

// useTokenServer points the token endpoint at handler.
func useTokenServer(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(handler)
	original := tokenEndpoint
	tokenEndpoint = srv.URL
	t.Cleanup(func() {
		tokenEndpoint = original
		srv.Close()
	})
}

func TestGetOrRefreshToken_ValidTokenIsReturned(t *testing.T) {
	setupTokenDB(t)
	at := time.Unix(1_700_000_000, 0)
	useClock(t, at)
	useTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("token endpoint should not be called")
	})

	stored := localdb.Token{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: at.Unix() + 3600}
	if err := localdb.SaveToken(stored); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}

	got, ok, err := GetOrRefreshToken(context.Background())
	if err != nil || !ok {
		t.Fatalf("unexpected result: ok=%v err=%v", ok, err)
	}
	if got.AccessToken != "a1" {
		t.Fatalf("unexpected token: got=%q want=%q", got.AccessToken, "a1")
	}
}

func TestGetOrRefreshToken_RefreshesExpiredToken(t *testing.T) {
	setupTokenDB(t)
	at := time.Unix(1_700_000_000, 0)
	useClock(t, at)
	useTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm failed: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("unexpected grant_type: got=%q want=refresh_token", got)
		}
		if got := r.PostForm.Get("refresh_token"); got != "r1" {
			t.Errorf("unexpected refresh_token: got=%q want=r1", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"a2","refresh_token":"r2","expires_in":14400,"scope":["user:read:chat","user:write:chat"]}`))
	})

	if err := localdb.SaveToken(localdb.Token{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: at.Unix() - 10}); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}

	got, ok, err := GetOrRefreshToken(context.Background())
	if err != nil || !ok {
		t.Fatalf("unexpected result: ok=%v err=%v", ok, err)
	}
	if got.AccessToken != "a2" || got.Scope != "user:read:chat user:write:chat" {
		t.Fatalf("unexpected token: %+v", got)
	}
	if got.ExpiresAt != at.Unix()+14400 {
		t.Fatalf("unexpected expiry: got=%d want=%d", got.ExpiresAt, at.Unix()+14400)
	}

	latest, err := localdb.LatestToken()
	if err != nil {
		t.Fatalf("LatestToken failed: %v", err)
	}
	if latest.AccessToken != "a2" {
		t.Fatalf("refreshed token should be stored: got=%q", latest.AccessToken)
	}
}

func TestSource_RejectedRefreshRequiresReauth(t *testing.T) {
	setupTokenDB(t)
	useTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":400,"message":"Invalid refresh token"}`))
	})

	if err := localdb.SaveToken(localdb.Token{AccessToken: "a1", RefreshToken: "bad", ExpiresAt: 1}); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}

	_, err := Source{}.AccessToken(context.Background())
	if !errors.Is(err, ErrReauthRequired) {
		t.Fatalf("unexpected error: got=%v want=%v", err, ErrReauthRequired)
	}
}

func TestCallbackHandler_ExchangesCode(t *testing.T) {
	setupTokenDB(t)
	useTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm failed: %v", err)
		}
		if got := r.PostForm.Get("code"); got != "abc" {
			t.Errorf("unexpected code: got=%q want=abc", got)
		}
		_, _ = w.Write([]byte(`{"access_token":"a9","refresh_token":"r9","expires_in":3600,"scope":["user:bot"]}`))
	})

	rec := httptest.NewRecorder()
	CallbackHandler(rec, httptest.NewRequest(http.MethodGet, "/callback?code=abc", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d want=%d body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}

	latest, err := localdb.LatestToken()
	if err != nil {
		t.Fatalf("LatestToken failed: %v", err)
	}
	if latest.AccessToken != "a9" {
		t.Fatalf("unexpected stored token: got=%q want=a9", latest.AccessToken)
	}

	rec = httptest.NewRecorder()
	CallbackHandler(rec, httptest.NewRequest(http.MethodGet, "/callback?error=access_denied", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusBadRequest)
	}
}
