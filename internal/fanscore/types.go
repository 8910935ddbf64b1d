package fanscore

import (
	"context"
	"time"

	"github.com/ichi0g0y/twitch-fanscore/internal/settings"
)

// FanUser is the durable loyalty record of one viewer. Rank is derived elsewhere.
type FanUser struct {
	UserID           string    `json:"user_id"`
	Nickname         string    `json:"nickname"`
	Tag              string    `json:"tag"`
	Score            int       `json:"score"`
	Exp              int       `json:"exp"`
	Level            int       `json:"level"`
	ChatCount        int       `json:"chat_count"`
	LikeCount        int       `json:"like_count"`
	SpoonCount       int       `json:"spoon_count"`
	LotteryTickets   int       `json:"lottery_tickets"`
	AttendanceLiveID string    `json:"attendance_live_id"`
	LastActivityAt   time.Time `json:"last_activity_at"`
}

// NewFanUser returns the record used for a viewer seen for the first time.
func NewFanUser(userID string) FanUser {
	return FanUser{UserID: userID, Level: MinLevel}
}

// PendingDelta accumulates changes between flushes. Score fields hold weighted points.
type PendingDelta struct {
	Attendance       int
	Chat             int
	Like             int
	Spoon            int
	ExpDirect        int
	LotteryChange    int
	Nickname         string
	Tag              string
	AttendanceLiveID string
	LastActivityAt   time.Time
}

// Repository is the durable home of fan users.
type Repository interface {
	// GetFanUser returns nil, nil when the user has no record yet.
	GetFanUser(ctx context.Context, userID string) (*FanUser, error)
	// SaveFanUsers upserts every user in one batch.
	SaveFanUsers(ctx context.Context, users []FanUser) error
}

type ConfigSource interface {
	Fanscore() settings.FanscoreConfig
}

// LevelUp describes one level change observed at flush.
type LevelUp struct {
	UserID   string `json:"user_id"`
	Nickname string `json:"nickname"`
	From     int    `json:"from"`
	To       int    `json:"to"`
}

// apply folds d into u using the currently configured units.
func apply(u FanUser, d *PendingDelta, cfg settings.FanscoreConfig) FanUser {
	attendance := d.Attendance
	if d.AttendanceLiveID != "" && d.AttendanceLiveID == u.AttendanceLiveID {
		// 再起動前に出席済み
		attendance = 0
	}
	weighted := attendance + d.Chat + d.Like + d.Spoon
	u.Score = max(0, u.Score+weighted)
	u.Exp = max(0, u.Exp+weighted+d.ExpDirect)
	u.Level, _ = CalculateLevel(u.Exp)
	u.ChatCount += perUnit(d.Chat, cfg.ChatScore)
	u.LikeCount += perUnit(d.Like, cfg.LikeScore)
	u.SpoonCount += perUnit(d.Spoon, cfg.SpoonScore)
	u.LotteryTickets = max(0, u.LotteryTickets+d.LotteryChange)
	if d.Nickname != "" {
		u.Nickname = d.Nickname
	}
	if d.Tag != "" {
		u.Tag = d.Tag
	}
	if d.AttendanceLiveID != "" {
		u.AttendanceLiveID = d.AttendanceLiveID
	}
	if d.LastActivityAt.After(u.LastActivityAt) {
		u.LastActivityAt = d.LastActivityAt
	}
	return u
}

func perUnit(points, unit int) int {
	if unit <= 0 {
		return 0
	}
	return points / unit
}
