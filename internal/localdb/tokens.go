package localdb

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"go.uber.org/zap"
)

var ErrNoToken = errors.New("no token stored")

type Token struct {
	AccessToken  string
	RefreshToken string
	Scope        string
	ExpiresAt    int64
}

func SetupTokensTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS tokens (
		id INTEGER PRIMARY KEY,
		access_token TEXT,
		refresh_token TEXT,
		scope TEXT,
		expires_at INTEGER
	)`)
	if err != nil {
		logger.Error("Failed to create tokens table", zap.Error(err))
		return fmt.Errorf("failed to create tokens table: %w", err)
	}
	return nil
}

// SaveToken stores t as the newest token.
func SaveToken(t Token) error {
	db := GetDB()
	if db == nil {
		return ErrNotInitialized
	}

	_, err := db.Exec(`INSERT INTO tokens (access_token, refresh_token, scope, expires_at) VALUES (?, ?, ?, ?)`,
		t.AccessToken, t.RefreshToken, t.Scope, t.ExpiresAt)
	if err != nil {
		logger.Error("Failed to save token", zap.Error(err))
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// LatestToken returns the most recently saved token, or ErrNoToken.
func LatestToken() (Token, error) {
	db := GetDB()
	if db == nil {
		return Token{}, ErrNotInitialized
	}

	var t Token
	err := db.QueryRow(`SELECT access_token, refresh_token, scope, expires_at FROM tokens ORDER BY id DESC LIMIT 1`).
		Scan(&t.AccessToken, &t.RefreshToken, &t.Scope, &t.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Token{}, ErrNoToken
	}
	if err != nil {
		return Token{}, fmt.Errorf("failed to load token: %w", err)
	}
	return t, nil
}

// DeleteAllTokens deletes all tokens from the database
// This is used when OAuth scopes are updated and re-authentication is required
func DeleteAllTokens() error {
	db := GetDB()
	if db == nil {
		return ErrNotInitialized
	}

	_, err := db.Exec("DELETE FROM tokens")
	if err != nil {
		logger.Error("Failed to delete tokens", zap.Error(err))
		return fmt.Errorf("failed to delete tokens: %w", err)
	}

	logger.Info("All tokens have been deleted (scope update requires re-authentication)")
	return nil
}
