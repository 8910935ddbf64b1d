package localdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ichi0g0y/twitch-fanscore/internal/fanscore"
	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"go.uber.org/zap"
)

func SetupFanUsersTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS fan_users (
		user_id TEXT PRIMARY KEY,
		nickname TEXT NOT NULL DEFAULT '',
		tag TEXT NOT NULL DEFAULT '',
		score INTEGER NOT NULL DEFAULT 0,
		exp INTEGER NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 1,
		chat_count INTEGER NOT NULL DEFAULT 0,
		like_count INTEGER NOT NULL DEFAULT 0,
		spoon_count INTEGER NOT NULL DEFAULT 0,
		lottery_tickets INTEGER NOT NULL DEFAULT 0,
		attendance_live_id TEXT NOT NULL DEFAULT '',
		last_activity_at INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		logger.Error("Failed to create fan_users table", zap.Error(err))
		return fmt.Errorf("failed to create fan_users table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_fan_users_score ON fan_users(score DESC)`)
	if err != nil {
		return fmt.Errorf("failed to create fan_users index: %w", err)
	}
	return nil
}

// FanUserRepository is the fanscore.Repository over the fan_users table.
type FanUserRepository struct {
	db *sql.DB
}

func NewFanUserRepository(db *sql.DB) *FanUserRepository {
	return &FanUserRepository{db: db}
}

const fanUserColumns = `user_id, nickname, tag, score, exp, level, chat_count, like_count,
	spoon_count, lottery_tickets, attendance_live_id, last_activity_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFanUser(row rowScanner) (fanscore.FanUser, error) {
	var u fanscore.FanUser
	var lastActivity int64
	err := row.Scan(&u.UserID, &u.Nickname, &u.Tag, &u.Score, &u.Exp, &u.Level,
		&u.ChatCount, &u.LikeCount, &u.SpoonCount, &u.LotteryTickets,
		&u.AttendanceLiveID, &lastActivity)
	if err != nil {
		return fanscore.FanUser{}, err
	}
	if lastActivity > 0 {
		u.LastActivityAt = time.UnixMilli(lastActivity)
	}
	return u, nil
}

func (r *FanUserRepository) GetFanUser(ctx context.Context, userID string) (*fanscore.FanUser, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+fanUserColumns+` FROM fan_users WHERE user_id = ?`, userID)
	u, err := scanFanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fan user: %w", err)
	}
	return &u, nil
}

// SaveFanUsers upserts users in a single transaction.
func (r *FanUserRepository) SaveFanUsers(ctx context.Context, users []fanscore.FanUser) error {
	if len(users) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin fan user batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fan_users (`+fanUserColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			nickname = excluded.nickname,
			tag = excluded.tag,
			score = excluded.score,
			exp = excluded.exp,
			level = excluded.level,
			chat_count = excluded.chat_count,
			like_count = excluded.like_count,
			spoon_count = excluded.spoon_count,
			lottery_tickets = excluded.lottery_tickets,
			attendance_live_id = excluded.attendance_live_id,
			last_activity_at = excluded.last_activity_at,
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("failed to prepare fan user upsert: %w", err)
	}
	defer stmt.Close()

	for _, u := range users {
		var lastActivity int64
		if !u.LastActivityAt.IsZero() {
			lastActivity = u.LastActivityAt.UnixMilli()
		}
		if _, err := stmt.ExecContext(ctx, u.UserID, u.Nickname, u.Tag, u.Score, u.Exp, u.Level,
			u.ChatCount, u.LikeCount, u.SpoonCount, u.LotteryTickets,
			u.AttendanceLiveID, lastActivity); err != nil {
			return fmt.Errorf("failed to upsert fan user %s: %w", u.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit fan user batch: %w", err)
	}
	return nil
}

// TopFanUsers returns users ordered by score, highest first.
func (r *FanUserRepository) TopFanUsers(ctx context.Context, limit int) ([]fanscore.FanUser, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+fanUserColumns+` FROM fan_users ORDER BY score DESC, user_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list fan users: %w", err)
	}
	defer rows.Close()

	users := []fanscore.FanUser{}
	for rows.Next() {
		u, err := scanFanUser(rows)
		if err != nil {
			logger.Error("Failed to scan fan user", zap.Error(err))
			continue
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
