package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/ichi0g0y/twitch-fanscore/internal/env"
	"github.com/ichi0g0y/twitch-fanscore/internal/fanscore"
	"github.com/ichi0g0y/twitch-fanscore/internal/localdb"
	"github.com/ichi0g0y/twitch-fanscore/internal/ranking"
	"github.com/ichi0g0y/twitch-fanscore/internal/recordstore"
	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"github.com/ichi0g0y/twitch-fanscore/internal/webserver"
	"go.uber.org/zap"
)

const redisKeyPrefix = "fanscore:"

var (
	storeRetry   = recordstore.DefaultReadyInterval
	buildBackend = newBackend
)

// openBackend selects the record store backend and blocks until it answers.
// The Redis client is also returned so the ranking board can share it; it is nil
// for the other backends.
func openBackend(ctx context.Context, db *sql.DB, e env.Env) (recordstore.Backend, *redis.Client, error) {
	backend, client, err := buildBackend(db, e)
	if err != nil {
		return nil, nil, err
	}
	// 起動時は無期限に待つ。止められるのはシグナルだけ
	if err := recordstore.WaitReady(ctx, backend, storeRetry); err != nil {
		if client != nil {
			client.Close()
		}
		return nil, nil, err
	}
	logger.Info("Record store ready", zap.String("backend", e.StoreBackend))
	return backend, client, nil
}

func newBackend(db *sql.DB, e env.Env) (recordstore.Backend, *redis.Client, error) {
	switch e.StoreBackend {
	case "redis":
		client := newRedisClient(e)
		return recordstore.NewRedisBackend(client, redisKeyPrefix), client, nil
	case "sqlite", "":
		return localdb.NewDocumentBackend(db), nil, nil
	case "memory":
		logger.Warn("Using in-memory record store, game state is lost on restart")
		return recordstore.NewMemoryBackend(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", e.StoreBackend)
	}
}

func newRedisClient(e env.Env) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        e.RedisAddr,
		Password:    e.RedisPassword,
		DB:          e.RedisDB,
		DialTimeout: 5 * time.Second,
	})
}

// setupRanking prefers the Redis leaderboard and falls back to the fan user table.
// When it has to create its own Redis client, that client is returned for the caller
// to close; a shared client is never returned.
func setupRanking(fans *fanscore.Aggregator, repo *localdb.FanUserRepository, shared *redis.Client, e env.Env) (webserver.Ranker, *redis.Client) {
	if !e.RankingEnabled {
		return ranking.NewRepoBoard(repo), nil
	}
	var owned *redis.Client
	client := shared
	if client == nil {
		owned = newRedisClient(e)
		client = owned
	}
	board := ranking.NewBoard(client, redisKeyPrefix)
	fans.OnFlushed(board.OnFlushed)
	logger.Info("Redis ranking enabled", zap.String("addr", e.RedisAddr))
	return board, owned
}
