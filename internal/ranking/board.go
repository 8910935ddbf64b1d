// Package ranking keeps a score leaderboard of fan users in a Redis sorted set.
package ranking

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/ichi0g0y/twitch-fanscore/internal/fanscore"
	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"go.uber.org/zap"
)

const (
	scoresKey = "ranking:scores"
	namesKey  = "ranking:names"
)

// Entry is one row of the leaderboard. Rank starts at 1.
type Entry struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"user_id"`
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
}

type Board struct {
	client *redis.Client
	prefix string
}

func NewBoard(client *redis.Client, prefix string) *Board {
	return &Board{client: client, prefix: prefix}
}

// Update writes the current totals of users. It is meant to be hooked to every flush.
func (b *Board) Update(ctx context.Context, users []fanscore.FanUser) error {
	if len(users) == 0 {
		return nil
	}
	pipe := b.client.TxPipeline()
	names := make([]interface{}, 0, len(users)*2)
	for _, u := range users {
		pipe.ZAdd(ctx, b.prefix+scoresKey, &redis.Z{Score: float64(u.Score), Member: u.UserID})
		if u.Nickname != "" {
			names = append(names, u.UserID, u.Nickname)
		}
	}
	if len(names) > 0 {
		pipe.HSet(ctx, b.prefix+namesKey, names...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update ranking: %w", err)
	}
	return nil
}

// OnFlushed adapts Update to the aggregator hook. Failures are logged only.
func (b *Board) OnFlushed(ctx context.Context, users []fanscore.FanUser) {
	if err := b.Update(ctx, users); err != nil {
		logger.Warn("Failed to update ranking", zap.Int("users", len(users)), zap.Error(err))
	}
}

// Top returns the n highest scores. Equal scores share a rank.
func (b *Board) Top(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return []Entry{}, nil
	}
	zs, err := b.client.ZRevRangeWithScores(ctx, b.prefix+scoresKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read ranking: %w", err)
	}
	if len(zs) == 0 {
		return []Entry{}, nil
	}

	ids := make([]string, len(zs))
	for i, z := range zs {
		ids[i], _ = z.Member.(string)
	}
	names, err := b.client.HMGet(ctx, b.prefix+namesKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read ranking names: %w", err)
	}
	return buildEntries(zs, names), nil
}

func buildEntries(zs []redis.Z, names []interface{}) []Entry {
	entries := make([]Entry, len(zs))
	for i, z := range zs {
		id, _ := z.Member.(string)
		e := Entry{UserID: id, Score: int(z.Score), Rank: i + 1}
		if i < len(names) {
			e.Nickname, _ = names[i].(string)
		}
		if i > 0 && entries[i-1].Score == e.Score {
			e.Rank = entries[i-1].Rank
		}
		entries[i] = e
	}
	return entries
}
