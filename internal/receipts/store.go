// Package receipts persists order confirmations to a local SQLite file.
package receipts

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"drop_engine/internal/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS receipts (
    order_id   TEXT PRIMARY KEY,
    seller     TEXT NOT NULL,
    status     TEXT NOT NULL,
    payload    TEXT NOT NULL,
    placed_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS receipts_seller_placed ON receipts (seller, placed_at DESC);
`

// SQLiteStore implements core.IReceiptStore on a local database file.
// Safe for use from multiple goroutines; database/sql serializes access.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the receipt database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create receipt directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// WAL mode so a crash mid-checkout never corrupts prior receipts.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveReceipt inserts one confirmation. Saving the same order id twice
// overwrites, so a crash between checkout and persist can be replayed.
func (s *SQLiteStore) SaveReceipt(ctx context.Context, seller string, conf *core.OrderConfirmation) error {
	payload, err := json.Marshal(conf)
	if err != nil {
		return fmt.Errorf("failed to marshal confirmation: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `INSERT OR REPLACE INTO receipts (order_id, seller, status, payload, placed_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query,
		conf.OrderID, seller, string(conf.Status), string(payload), conf.PlacedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("failed to write receipt: %w", err)
	}
	return tx.Commit()
}

// ListReceipts returns up to limit confirmations for a seller, newest first.
func (s *SQLiteStore) ListReceipts(ctx context.Context, seller string, limit int) ([]*core.OrderConfirmation, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT payload FROM receipts WHERE seller = ? ORDER BY placed_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, seller, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var out []*core.OrderConfirmation
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		var conf core.OrderConfirmation
		if err := json.Unmarshal([]byte(payload), &conf); err != nil {
			return nil, fmt.Errorf("failed to unmarshal receipt: %w", err)
		}
		out = append(out, &conf)
	}
	return out, rows.Err()
}

// PruneOlderThan deletes receipts placed before the cutoff and reports how
// many were removed.
func (s *SQLiteStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM receipts WHERE placed_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune receipts: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
