package env

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Env holds process-level configuration. Game tuning lives in the settings table instead.
type Env struct {
	DBPath     string `env:"DB_PATH" envDefault:"fanscore.db"`
	ServerPort int    `env:"SERVER_PORT" envDefault:"8080"`
	DebugMode  bool   `env:"DEBUG_MODE" envDefault:"false"`

	StoreBackend   string `env:"STORE_BACKEND" envDefault:"sqlite"`
	RedisAddr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	RankingEnabled bool   `env:"RANKING_ENABLED" envDefault:"false"`

	ClientID     *string `env:"CLIENT_ID"`
	ClientSecret *string `env:"CLIENT_SECRET"`
	TwitchUserID *string `env:"TWITCH_USER_ID"`
	BotUserID    *string `env:"BOT_USER_ID"`
	LikeRewardID *string `env:"LIKE_REWARD_ID"`
}

// Value is the loaded configuration. LoadEnv must run before it is read.
var Value Env

// LoadEnv reads an optional .env file and parses the environment into Value.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil {
		// .envが無いのは正常
		logger.Debug("No .env file loaded", zap.Error(err))
	}

	var v Env
	if err := env.Parse(&v); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	Value = v
	return nil
}

// Str dereferences an optional value.
func Str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
