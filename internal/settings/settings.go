package settings

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"go.uber.org/zap"
)

type SettingType string

const (
	SettingTypeNormal   SettingType = "normal"
	SettingTypeSecret   SettingType = "secret"
	SettingTypeFanscore SettingType = "fanscore"
	SettingTypeYacht    SettingType = "yacht"
)

var ErrUnknownSetting = errors.New("unknown setting key")

type Setting struct {
	Key         string      `json:"key"`
	Value       string      `json:"value"`
	Type        SettingType `json:"type"`
	Required    bool        `json:"required"`
	Description string      `json:"description"`
	UpdatedAt   time.Time   `json:"updated_at"`
	HasValue    bool        `json:"has_value"` // シークレット値が設定されているかどうか
}

type SettingsManager struct {
	db *sql.DB
}

func NewSettingsManager(db *sql.DB) *SettingsManager {
	return &SettingsManager{db: db}
}

// 設定の定義
var DefaultSettings = map[string]Setting{
	// ファンスコア
	"FANSCORE_ENABLED": {
		Key: "FANSCORE_ENABLED", Value: "true", Type: SettingTypeFanscore,
		Description: "Enable fan score accumulation",
	},
	"FANSCORE_ATTENDANCE_SCORE": {
		Key: "FANSCORE_ATTENDANCE_SCORE", Value: "10", Type: SettingTypeFanscore,
		Description: "Points for the first chat of a live session",
	},
	"FANSCORE_CHAT_SCORE": {
		Key: "FANSCORE_CHAT_SCORE", Value: "1", Type: SettingTypeFanscore,
		Description: "Points per chat message",
	},
	"FANSCORE_LIKE_SCORE": {
		Key: "FANSCORE_LIKE_SCORE", Value: "5", Type: SettingTypeFanscore,
		Description: "Points per like",
	},
	"FANSCORE_SPOON_SCORE": {
		Key: "FANSCORE_SPOON_SCORE", Value: "100", Type: SettingTypeFanscore,
		Description: "Points per gifted unit (bits)",
	},

	// クイズ
	"FANSCORE_QUIZ_ENABLED": {
		Key: "FANSCORE_QUIZ_ENABLED", Value: "false", Type: SettingTypeFanscore,
		Description: "Enable timed quiz",
	},
	"FANSCORE_QUIZ_BONUS": {
		Key: "FANSCORE_QUIZ_BONUS", Value: "50", Type: SettingTypeFanscore,
		Description: "Exp credited for a correct quiz answer",
	},
	"FANSCORE_QUIZ_INTERVAL": {
		Key: "FANSCORE_QUIZ_INTERVAL", Value: "600", Type: SettingTypeFanscore,
		Description: "Seconds between quiz questions",
	},
	"FANSCORE_QUIZ_TIMEOUT": {
		Key: "FANSCORE_QUIZ_TIMEOUT", Value: "60", Type: SettingTypeFanscore,
		Description: "Seconds to answer a quiz question",
	},

	// 抽選
	"FANSCORE_LOTTERY_ENABLED": {
		Key: "FANSCORE_LOTTERY_ENABLED", Value: "true", Type: SettingTypeFanscore,
		Description: "Enable number lottery",
	},
	"FANSCORE_LOTTERY_SPOON_REQUIRED": {
		Key: "FANSCORE_LOTTERY_SPOON_REQUIRED", Value: "100", Type: SettingTypeFanscore,
		Description: "Gifted units per lottery ticket",
	},

	// ヨット
	"YACHT_ENABLED": {
		Key: "YACHT_ENABLED", Value: "true", Type: SettingTypeYacht,
		Description: "Enable the dice game",
	},
	"YACHT_WINNING_SCORE": {
		Key: "YACHT_WINNING_SCORE", Value: "50", Type: SettingTypeYacht,
		Description: "Minimum hand score that earns a reward",
	},
	"YACHT_SCORE_MULTIPLIER": {
		Key: "YACHT_SCORE_MULTIPLIER", Value: "1", Type: SettingTypeYacht,
		Description: "Exp multiplier applied to a winning hand",
	},
	"YACHT_GAME_COOLDOWN": {
		Key: "YACHT_GAME_COOLDOWN", Value: "60", Type: SettingTypeYacht,
		Description: "Seconds a player waits between games",
	},
}

// CRUD操作
func (sm *SettingsManager) GetSetting(key string) (string, error) {
	var value string
	err := sm.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		// デフォルト値を返す
		if defaultSetting, exists := DefaultSettings[key]; exists {
			return defaultSetting.Value, nil
		}
		return "", fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	return value, err
}

func (sm *SettingsManager) SetSetting(key, value string) error {
	// デフォルト設定が存在するかチェック
	defaultSetting, exists := DefaultSettings[key]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	if err := ValidateSetting(key, value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	_, err := sm.db.Exec(`
		INSERT INTO settings (key, value, setting_type, is_required, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`,
		key, value,
		string(defaultSetting.Type),
		defaultSetting.Required,
		defaultSetting.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

// SetSettings validates every pair first, then writes them in one transaction.
func (sm *SettingsManager) SetSettings(values map[string]string) error {
	keys := make([]string, 0, len(values))
	for key, value := range values {
		if _, ok := DefaultSettings[key]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
		}
		if err := ValidateSetting(key, value); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	tx, err := sm.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin settings transaction: %w", err)
	}
	defer tx.Rollback()

	for _, key := range keys {
		def := DefaultSettings[key]
		if _, err := tx.Exec(`
			INSERT INTO settings (key, value, setting_type, is_required, description)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				updated_at = CURRENT_TIMESTAMP`,
			key, values[key], string(def.Type), def.Required, def.Description); err != nil {
			return fmt.Errorf("failed to save setting %s: %w", key, err)
		}
	}
	return tx.Commit()
}

func (sm *SettingsManager) GetAllSettings() (map[string]Setting, error) {
	rows, err := sm.db.Query(`
		SELECT key, value, setting_type, is_required, description, updated_at
		FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]Setting)
	for rows.Next() {
		var s Setting
		var settingType string
		var description sql.NullString
		err := rows.Scan(&s.Key, &s.Value, &settingType, &s.Required, &description, &s.UpdatedAt)
		if err != nil {
			return nil, err
		}
		s.Type = SettingType(settingType)
		s.Description = description.String
		s.HasValue = s.Value != ""

		settings[s.Key] = s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// DBにない設定はデフォルト値で補完
	for key, defaultSetting := range DefaultSettings {
		if _, exists := settings[key]; !exists {
			defaultSetting.HasValue = defaultSetting.Value != ""
			settings[key] = defaultSetting
		}
	}

	return settings, nil
}

// 初期設定のセットアップ
func (sm *SettingsManager) InitializeDefaultSettings() error {
	initialized := 0
	for key, setting := range DefaultSettings {
		// 既に設定が存在する場合はスキップ
		var existingKey string
		if err := sm.db.QueryRow("SELECT key FROM settings WHERE key = ?", key).Scan(&existingKey); err == nil {
			continue
		}

		if err := sm.SetSetting(key, setting.Value); err != nil {
			return fmt.Errorf("failed to initialize setting %s: %w", key, err)
		}
		initialized++
	}
	if initialized > 0 {
		logger.Info("Initialized default settings", zap.Int("count", initialized))
	}
	return nil
}

var boolSettings = map[string]bool{
	"FANSCORE_ENABLED":         true,
	"FANSCORE_QUIZ_ENABLED":    true,
	"FANSCORE_LOTTERY_ENABLED": true,
	"YACHT_ENABLED":            true,
}

type intRange struct{ min, max int }

var intSettings = map[string]intRange{
	"FANSCORE_ATTENDANCE_SCORE":       {0, 100000},
	"FANSCORE_CHAT_SCORE":             {0, 100000},
	"FANSCORE_LIKE_SCORE":             {0, 100000},
	"FANSCORE_SPOON_SCORE":            {0, 100000},
	"FANSCORE_QUIZ_BONUS":             {0, 100000},
	"FANSCORE_QUIZ_INTERVAL":          {10, 86400},
	"FANSCORE_QUIZ_TIMEOUT":           {5, 3600},
	"FANSCORE_LOTTERY_SPOON_REQUIRED": {1, 1000000},
	"YACHT_WINNING_SCORE":             {0, 150},
	"YACHT_SCORE_MULTIPLIER":          {0, 1000},
	"YACHT_GAME_COOLDOWN":             {0, 86400},
}

// バリデーション
func ValidateSetting(key, value string) error {
	if boolSettings[key] {
		if value != "true" && value != "false" {
			return fmt.Errorf("must be 'true' or 'false'")
		}
		return nil
	}
	if r, ok := intSettings[key]; ok {
		val, err := strconv.Atoi(value)
		if err != nil || val < r.min || val > r.max {
			return fmt.Errorf("must be integer between %d and %d", r.min, r.max)
		}
	}
	return nil
}
