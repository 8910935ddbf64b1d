package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ichi0g0y/twitch-fanscore/internal/bot"
	"github.com/ichi0g0y/twitch-fanscore/internal/chatout"
	"github.com/ichi0g0y/twitch-fanscore/internal/env"
	"github.com/ichi0g0y/twitch-fanscore/internal/fanscore"
	"github.com/ichi0g0y/twitch-fanscore/internal/localdb"
	"github.com/ichi0g0y/twitch-fanscore/internal/lottery"
	"github.com/ichi0g0y/twitch-fanscore/internal/notify"
	"github.com/ichi0g0y/twitch-fanscore/internal/quiz"
	"github.com/ichi0g0y/twitch-fanscore/internal/recordstore"
	"github.com/ichi0g0y/twitch-fanscore/internal/roulette"
	"github.com/ichi0g0y/twitch-fanscore/internal/settings"
	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"github.com/ichi0g0y/twitch-fanscore/internal/status"
	"github.com/ichi0g0y/twitch-fanscore/internal/twitchapi"
	"github.com/ichi0g0y/twitch-fanscore/internal/twitchtoken"
	"github.com/ichi0g0y/twitch-fanscore/internal/version"
	"github.com/ichi0g0y/twitch-fanscore/internal/webserver"
	"github.com/ichi0g0y/twitch-fanscore/internal/yacht"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger.Init(false)
	defer logger.Sync()

	if err := env.LoadEnv(); err != nil {
		logger.Fatal("Failed to load environment", zap.Error(err))
	}
	if env.Value.DebugMode {
		logger.Init(true)
		logger.Info("Debug mode enabled")
	}
	logger.Info("Starting twitch-fanscore server", zap.String("version", version.String()))

	db, err := localdb.SetupDB(env.Value.DBPath)
	if err != nil {
		logger.Fatal("Failed to setup database", zap.Error(err))
	}
	defer db.Close()

	sm := settings.NewSettingsManager(db)
	if err := sm.InitializeDefaultSettings(); err != nil {
		logger.Fatal("Failed to initialize settings", zap.Error(err))
	}
	live := settings.NewLive(settings.DefaultFanscoreConfig(), settings.DefaultYachtConfig())
	if err := live.Reload(sm); err != nil {
		logger.Fatal("Failed to load game settings", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, redisClient, err := openBackend(ctx, db, env.Value)
	if err != nil {
		logger.Fatal("Failed to open record store", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	store := recordstore.New(backend)

	hub := webserver.NewHub()
	go hub.Run(ctx)

	api := twitchapi.NewClient(env.Str(env.Value.ClientID), twitchtoken.Source{})
	var messenger notify.Messenger = notify.Nop{}
	var outbox *chatout.Outbox
	if broadcaster := env.Str(env.Value.TwitchUserID); broadcaster != "" {
		sender := env.Str(env.Value.BotUserID)
		if sender == "" {
			sender = broadcaster
		}
		outbox = chatout.New(api, chatout.Options{BroadcasterID: broadcaster, SenderID: sender})
		outbox.Start(ctx)
		messenger = outbox
	} else {
		logger.Warn("TWITCH_USER_ID not configured, chat replies are disabled")
	}

	repo := localdb.NewFanUserRepository(db)
	fans := fanscore.New(fanscore.Deps{
		Repo:      repo,
		Config:    live,
		Notifier:  hub,
		Messenger: messenger,
	})
	ranker, rankingClient := setupRanking(fans, repo, redisClient, env.Value)
	if rankingClient != nil {
		defer rankingClient.Close()
	}
	fans.Start(ctx)

	wheel := roulette.New(roulette.Deps{
		Store:     store,
		Lottery:   fans,
		Notifier:  hub,
		Messenger: messenger,
	})
	lotto := lottery.New(lottery.Deps{Bank: fans, Config: live, Notifier: hub})
	dice := yacht.New(yacht.Deps{Exp: fans, Config: live, Notifier: hub})
	master := quiz.New(quiz.Deps{
		Store:     store,
		Exp:       fans,
		Config:    live,
		Notifier:  hub,
		Messenger: messenger,
	})
	master.Start(ctx)
	live.RegisterChangeCallback(func(settings.FanscoreConfig, settings.YachtConfig) {
		master.Restart()
	})

	router := bot.NewRouter(bot.Deps{
		Fans:      fans,
		Roulette:  wheel,
		Lottery:   lotto,
		Yacht:     dice,
		Quiz:      master,
		LiveID:    status.CurrentLiveID,
		Messenger: messenger,
	})

	status.RegisterStreamStatusChangeCallback(func(s status.StreamStatus) {
		hub.Emit("stream:status", s)
	})

	srv := webserver.New(webserver.Deps{
		Settings:  sm,
		Live:      live,
		Fans:      fans,
		Roulette:  wheel,
		Quiz:      master,
		Ranking:   ranker,
		Hub:       hub,
		Events:    router,
		DebugMode: env.Value.DebugMode,
	})
	if err := srv.Start(env.Value.ServerPort); err != nil {
		logger.Fatal("Failed to start web server", zap.Error(err))
	}

	events := startTwitchBackground(ctx, api, router)

	logger.Info("Server started", zap.Int("port", env.Value.ServerPort))
	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	master.Stop()
	if events != nil {
		events.Stop()
	}
	srv.Shutdown(shutdownCtx)
	// 未保存のスコアを書き出す
	if err := fans.Stop(shutdownCtx); err != nil {
		logger.Error("Final flush failed", zap.Error(err))
	}
	if outbox != nil {
		outbox.Stop()
	}
	logger.Info("Shutdown complete")
}
