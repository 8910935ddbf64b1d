package env

import "testing"

func TestLoadEnv_DefaultsAndOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("TWITCH_USER_ID", "12345")

	if err := LoadEnv(); err != nil {
		t.Fatalf("LoadEnv failed: %v", err)
	}

	if Value.ServerPort != 9090 {
		t.Fatalf("unexpected ServerPort: got=%d want=9090", Value.ServerPort)
	}
	if Value.StoreBackend != "redis" {
		t.Fatalf("unexpected StoreBackend: got=%q want=%q", Value.StoreBackend, "redis")
	}
	if Value.DBPath != "fanscore.db" {
		t.Fatalf("unexpected DBPath default: got=%q", Value.DBPath)
	}
	if Str(Value.TwitchUserID) != "12345" {
		t.Fatalf("unexpected TwitchUserID: got=%q", Str(Value.TwitchUserID))
	}
	if Str(Value.BotUserID) != "" {
		t.Fatalf("unset pointer should read as empty, got=%q", Str(Value.BotUserID))
	}
}

func TestLoadEnv_InvalidPort(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_PORT", "not-a-number")

	if err := LoadEnv(); err == nil {
		t.Fatalf("expected parse error for invalid SERVER_PORT")
	}
}
