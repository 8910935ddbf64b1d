package settings

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"go.uber.org/zap"
)

// FanscoreConfig tunes score accumulation, the quiz and the number lottery.
type FanscoreConfig struct {
	Enabled              bool          `json:"enabled"`
	AttendanceScore      int           `json:"attendance_score"`
	ChatScore            int           `json:"chat_score"`
	LikeScore            int           `json:"like_score"`
	SpoonScore           int           `json:"spoon_score"`
	QuizEnabled          bool          `json:"quiz_enabled"`
	QuizBonus            int           `json:"quiz_bonus"`
	QuizInterval         time.Duration `json:"quiz_interval"`
	QuizTimeout          time.Duration `json:"quiz_timeout"`
	LotteryEnabled       bool          `json:"lottery_enabled"`
	LotterySpoonRequired int           `json:"lottery_spoon_required"`
}

// YachtConfig tunes the dice game.
type YachtConfig struct {
	Enabled         bool          `json:"enabled"`
	WinningScore    int           `json:"winning_score"`
	ScoreMultiplier int           `json:"score_multiplier"`
	GameCooldown    time.Duration `json:"game_cooldown"`
}

type lookup func(key string) string

func defaultLookup(key string) string {
	return DefaultSettings[key].Value
}

func parseFanscore(get lookup) FanscoreConfig {
	return FanscoreConfig{
		Enabled:              parseBool(get, "FANSCORE_ENABLED"),
		AttendanceScore:      parseInt(get, "FANSCORE_ATTENDANCE_SCORE"),
		ChatScore:            parseInt(get, "FANSCORE_CHAT_SCORE"),
		LikeScore:            parseInt(get, "FANSCORE_LIKE_SCORE"),
		SpoonScore:           parseInt(get, "FANSCORE_SPOON_SCORE"),
		QuizEnabled:          parseBool(get, "FANSCORE_QUIZ_ENABLED"),
		QuizBonus:            parseInt(get, "FANSCORE_QUIZ_BONUS"),
		QuizInterval:         parseSeconds(get, "FANSCORE_QUIZ_INTERVAL"),
		QuizTimeout:          parseSeconds(get, "FANSCORE_QUIZ_TIMEOUT"),
		LotteryEnabled:       parseBool(get, "FANSCORE_LOTTERY_ENABLED"),
		LotterySpoonRequired: parseInt(get, "FANSCORE_LOTTERY_SPOON_REQUIRED"),
	}
}

func parseYacht(get lookup) YachtConfig {
	return YachtConfig{
		Enabled:         parseBool(get, "YACHT_ENABLED"),
		WinningScore:    parseInt(get, "YACHT_WINNING_SCORE"),
		ScoreMultiplier: parseInt(get, "YACHT_SCORE_MULTIPLIER"),
		GameCooldown:    parseSeconds(get, "YACHT_GAME_COOLDOWN"),
	}
}

// 不正な値はデフォルトにフォールバック
func parseInt(get lookup, key string) int {
	if v, err := strconv.Atoi(get(key)); err == nil {
		return v
	}
	v, _ := strconv.Atoi(defaultLookup(key))
	return v
}

func parseBool(get lookup, key string) bool {
	if v, err := strconv.ParseBool(get(key)); err == nil {
		return v
	}
	v, _ := strconv.ParseBool(defaultLookup(key))
	return v
}

func parseSeconds(get lookup, key string) time.Duration {
	return time.Duration(parseInt(get, key)) * time.Second
}

func DefaultFanscoreConfig() FanscoreConfig {
	return parseFanscore(defaultLookup)
}

func DefaultYachtConfig() YachtConfig {
	return parseYacht(defaultLookup)
}

// Live holds the current game configuration and notifies subscribers when it changes.
type Live struct {
	mu        sync.RWMutex
	fanscore  FanscoreConfig
	yacht     YachtConfig
	callbacks []func(FanscoreConfig, YachtConfig)
}

func NewLive(f FanscoreConfig, y YachtConfig) *Live {
	return &Live{fanscore: f, yacht: y}
}

func (l *Live) Fanscore() FanscoreConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fanscore
}

func (l *Live) Yacht() YachtConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.yacht
}

// RegisterChangeCallback adds a function run after every Set or Reload.
func (l *Live) RegisterChangeCallback(cb func(FanscoreConfig, YachtConfig)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callbacks = append(l.callbacks, cb)
}

// Set replaces both configs and fires the change callbacks.
func (l *Live) Set(f FanscoreConfig, y YachtConfig) {
	l.mu.Lock()
	l.fanscore = f
	l.yacht = y
	callbacks := make([]func(FanscoreConfig, YachtConfig), len(l.callbacks))
	copy(callbacks, l.callbacks)
	l.mu.Unlock()

	for _, cb := range callbacks {
		cb(f, y)
	}
}

// Reload re-reads both configs from the settings table.
func (l *Live) Reload(sm *SettingsManager) error {
	values := make(map[string]string)
	for key := range DefaultSettings {
		v, err := sm.GetSetting(key)
		if err != nil {
			return fmt.Errorf("failed to load setting %s: %w", key, err)
		}
		values[key] = v
	}
	get := func(key string) string { return values[key] }

	f, y := parseFanscore(get), parseYacht(get)
	l.Set(f, y)
	logger.Info("Game settings reloaded",
		zap.Bool("fanscore_enabled", f.Enabled),
		zap.Bool("quiz_enabled", f.QuizEnabled),
		zap.Duration("quiz_interval", f.QuizInterval),
		zap.Bool("lottery_enabled", f.LotteryEnabled),
		zap.Bool("yacht_enabled", y.Enabled))
	return nil
}
