package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/ichi0g0y/twitch-fanscore/internal/env"
	"github.com/ichi0g0y/twitch-fanscore/internal/fanscore"
	"github.com/ichi0g0y/twitch-fanscore/internal/localdb"
	"github.com/ichi0g0y/twitch-fanscore/internal/quiz"
	"github.com/ichi0g0y/twitch-fanscore/internal/recordstore"
	"github.com/ichi0g0y/twitch-fanscore/internal/roulette"
	"github.com/ichi0g0y/twitch-fanscore/internal/settings"
	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"github.com/spf13/cobra"
)

const (
	redisKeyPrefix    = "fanscore:"
	storeReadyTimeout = 10 * time.Second
)

type rootOptions struct {
	dbPath        string
	backend       string
	redisAddr     string
	redisPassword string
	redisDB       int
	debug         bool
}

// app is the set of engines a command works against. Nothing is started: no
// timers run and every change is flushed when the command returns.
type app struct {
	db     *sql.DB
	client *redis.Client
	store  *recordstore.Store
	fans   *fanscore.Aggregator
	wheel  *roulette.Engine
	quiz   *quiz.Master
}

func newRootCommand(e env.Env) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "fanscorectl",
		Short: "Offline administration for twitch-fanscore",
		Long: `Import roulette templates and quiz questions, inspect viewers and grant
tickets or exp directly against the database.

Run it while the server is stopped. The server caches templates and viewer
records in memory and will not see changes made underneath it.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.debug {
				logger.Init(true)
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", e.DBPath, "sqlite database path")
	cmd.PersistentFlags().StringVar(&opts.backend, "store", e.StoreBackend, "record store backend (sqlite|redis)")
	cmd.PersistentFlags().StringVar(&opts.redisAddr, "redis-addr", e.RedisAddr, "redis address for the redis backend")
	cmd.PersistentFlags().IntVar(&opts.redisDB, "redis-db", e.RedisDB, "redis database number")
	cmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", e.DebugMode, "debug logging")
	opts.redisPassword = e.RedisPassword

	cmd.AddCommand(newImportTemplatesCommand(opts))
	cmd.AddCommand(newImportQuizCommand(opts))
	cmd.AddCommand(newUserCommand(opts))
	cmd.AddCommand(newGrantCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// withApp opens the database and store, runs fn and flushes pending score changes.
func withApp(ctx context.Context, opts *rootOptions, fn func(ctx context.Context, a *app) error) (err error) {
	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.close(ctx))
	}()
	return fn(ctx, a)
}

func openApp(ctx context.Context, opts *rootOptions) (*app, error) {
	if opts.dbPath == "" {
		return nil, errors.New("database path is required")
	}
	db, err := localdb.SetupDB(opts.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a := &app{db: db}

	var backend recordstore.Backend
	switch opts.backend {
	case "sqlite", "":
		backend = localdb.NewDocumentBackend(db)
	case "redis":
		a.client = redis.NewClient(&redis.Options{
			Addr:     opts.redisAddr,
			Password: opts.redisPassword,
			DB:       opts.redisDB,
		})
		backend = recordstore.NewRedisBackend(a.client, redisKeyPrefix)
	default:
		a.release()
		return nil, fmt.Errorf("unsupported store backend %q", opts.backend)
	}

	readyCtx, cancel := context.WithTimeout(ctx, storeReadyTimeout)
	defer cancel()
	if err := recordstore.WaitReady(readyCtx, backend, time.Second); err != nil {
		a.release()
		return nil, fmt.Errorf("record store not ready: %w", err)
	}

	sm := settings.NewSettingsManager(db)
	if err := sm.InitializeDefaultSettings(); err != nil {
		a.release()
		return nil, fmt.Errorf("failed to initialize settings: %w", err)
	}
	live := settings.NewLive(settings.DefaultFanscoreConfig(), settings.DefaultYachtConfig())
	if err := live.Reload(sm); err != nil {
		a.release()
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	a.store = recordstore.New(backend)
	a.fans = fanscore.New(fanscore.Deps{Repo: localdb.NewFanUserRepository(db), Config: live})
	a.wheel = roulette.New(roulette.Deps{Store: a.store, Lottery: a.fans})
	a.quiz = quiz.New(quiz.Deps{Store: a.store, Exp: a.fans, Config: live})
	return a, nil
}

func (a *app) close(ctx context.Context) error {
	var err error
	if a.fans != nil {
		err = a.fans.Flush(ctx)
	}
	a.release()
	return err
}

func (a *app) release() {
	if a.client != nil {
		a.client.Close()
	}
	a.db.Close()
	localdb.DBClient = nil
}
