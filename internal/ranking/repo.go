package ranking

import (
	"context"
	"fmt"

	"github.com/ichi0g0y/twitch-fanscore/internal/fanscore"
)

// UserLister reads the highest scoring users straight from the durable store.
type UserLister interface {
	TopFanUsers(ctx context.Context, limit int) ([]fanscore.FanUser, error)
}

// RepoBoard serves the leaderboard from the fan user table when Redis is not configured.
type RepoBoard struct {
	users UserLister
}

func NewRepoBoard(users UserLister) *RepoBoard {
	return &RepoBoard{users: users}
}

func (b *RepoBoard) Top(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return []Entry{}, nil
	}
	users, err := b.users.TopFanUsers(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("failed to read ranking: %w", err)
	}
	entries := make([]Entry, len(users))
	for i, u := range users {
		entries[i] = Entry{Rank: i + 1, UserID: u.UserID, Nickname: u.Nickname, Score: u.Score}
		if i > 0 && entries[i-1].Score == u.Score {
			entries[i].Rank = entries[i-1].Rank
		}
	}
	return entries, nil
}
