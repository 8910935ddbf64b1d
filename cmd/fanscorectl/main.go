package main

import (
	"os"

	"github.com/ichi0g0y/twitch-fanscore/internal/env"
	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Init(false)
	defer logger.Sync()

	if err := env.LoadEnv(); err != nil {
		logger.Fatal("Failed to load environment", zap.Error(err))
	}
	if err := newRootCommand(env.Value).Execute(); err != nil {
		os.Exit(1)
	}
}
