package localdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ichi0g0y/twitch-fanscore/internal/recordstore"
	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"go.uber.org/zap"
)

func SetupDocumentsTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		key TEXT PRIMARY KEY,
		body TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		logger.Error("Failed to create documents table", zap.Error(err))
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	return nil
}

// DocumentBackend is a recordstore.Backend over the documents table.
type DocumentBackend struct {
	db *sql.DB
}

func NewDocumentBackend(db *sql.DB) *DocumentBackend {
	return &DocumentBackend{db: db}
}

func (d *DocumentBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var body string
	err := d.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE key = ?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, recordstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return []byte(body), nil
}

func (d *DocumentBackend) Put(ctx context.Context, key string, value []byte) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO documents (key, body, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			body = excluded.body,
			updated_at = CURRENT_TIMESTAMP`,
		key, string(value))
	if err != nil {
		return fmt.Errorf("failed to put document: %w", err)
	}
	return nil
}

func (d *DocumentBackend) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
