package settings

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func setupManager(t *testing.T) (*SettingsManager, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "settings.db"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		setting_type TEXT NOT NULL DEFAULT 'normal',
		is_required BOOLEAN NOT NULL DEFAULT false,
		description TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	return NewSettingsManager(db), db
}

func TestDefaultConfigs(t *testing.T) {
	f := DefaultFanscoreConfig()
	if !f.Enabled || f.ChatScore != 1 || f.SpoonScore != 100 {
		t.Fatalf("unexpected fanscore defaults: %+v", f)
	}
	if f.QuizInterval != 600*time.Second {
		t.Fatalf("unexpected quiz interval: got=%v want=%v", f.QuizInterval, 600*time.Second)
	}

	y := DefaultYachtConfig()
	if y.GameCooldown != time.Minute {
		t.Fatalf("unexpected cooldown: got=%v want=%v", y.GameCooldown, time.Minute)
	}
}

func TestSetSetting_ValidatesAndPersists(t *testing.T) {
	sm, _ := setupManager(t)

	if err := sm.SetSetting("FANSCORE_CHAT_SCORE", "abc"); err == nil {
		t.Fatalf("expected validation error")
	}
	if err := sm.SetSetting("NO_SUCH_KEY", "1"); !errors.Is(err, ErrUnknownSetting) {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sm.SetSetting("FANSCORE_CHAT_SCORE", "3"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}

	got, err := sm.GetSetting("FANSCORE_CHAT_SCORE")
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if got != "3" {
		t.Fatalf("unexpected value: got=%q want=%q", got, "3")
	}

	def, err := sm.GetSetting("YACHT_WINNING_SCORE")
	if err != nil {
		t.Fatalf("GetSetting default failed: %v", err)
	}
	if def != "50" {
		t.Fatalf("unexpected default: got=%q want=%q", def, "50")
	}
}

func TestSetSettings_AllOrNothing(t *testing.T) {
	sm, db := setupManager(t)

	err := sm.SetSettings(map[string]string{
		"FANSCORE_CHAT_SCORE": "7",
		"YACHT_ENABLED":       "maybe",
	})
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var v string
	err = db.QueryRow("SELECT value FROM settings WHERE key = ?", "FANSCORE_CHAT_SCORE").Scan(&v)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("nothing should be written on validation failure, got value=%q err=%v", v, err)
	}
}

func TestLive_ReloadFiresCallbacks(t *testing.T) {
	sm, _ := setupManager(t)
	if err := sm.InitializeDefaultSettings(); err != nil {
		t.Fatalf("InitializeDefaultSettings failed: %v", err)
	}
	if err := sm.SetSettings(map[string]string{
		"FANSCORE_QUIZ_INTERVAL": "30",
		"YACHT_ENABLED":          "false",
	}); err != nil {
		t.Fatalf("SetSettings failed: %v", err)
	}

	live := NewLive(DefaultFanscoreConfig(), DefaultYachtConfig())
	calls := 0
	live.RegisterChangeCallback(func(f FanscoreConfig, y YachtConfig) {
		calls++
		if f.QuizInterval != 30*time.Second {
			t.Fatalf("callback saw stale interval: %v", f.QuizInterval)
		}
	})

	if err := live.Reload(sm); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("unexpected callback count: got=%d want=1", calls)
	}
	if live.Yacht().Enabled {
		t.Fatalf("yacht should be disabled after reload")
	}
}

func TestValidateSetting(t *testing.T) {
	cases := []struct {
		key, value string
		ok         bool
	}{
		{"FANSCORE_ENABLED", "true", true},
		{"FANSCORE_ENABLED", "yes", false},
		{"FANSCORE_QUIZ_TIMEOUT", "4", false},
		{"FANSCORE_QUIZ_TIMEOUT", "60", true},
		{"FANSCORE_LOTTERY_SPOON_REQUIRED", "0", false},
		{"YACHT_WINNING_SCORE", "151", false},
	}
	for _, tc := range cases {
		err := ValidateSetting(tc.key, tc.value)
		if (err == nil) != tc.ok {
			t.Fatalf("ValidateSetting(%q, %q) error=%v want ok=%v", tc.key, tc.value, err, tc.ok)
		}
	}
}
