package storage

import (
	"database/sql"
	"fmt"
)

// InitSchema creates all tables and indexes if they do not exist.
func InitSchema(conn *sql.DB) error {
	if err := createWatchlistTable(conn); err != nil {
		return err
	}
	if err := createSentNoticeTable(conn); err != nil {
		return err
	}
	if err := createStockTable(conn); err != nil {
		return err
	}
	return nil
}

func createWatchlistTable(conn *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS watchlists (
		owner_id   TEXT NOT NULL,
		stock_code TEXT NOT NULL,
		stock_name TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (owner_id, stock_code)
	);
	CREATE INDEX IF NOT EXISTS idx_watchlists_stock_code ON watchlists(stock_code);
	`
	if _, err := conn.Exec(query); err != nil {
		return fmt.Errorf("failed to create watchlists table: %w", err)
	}
	return nil
}

func createStockTable(conn *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS stocks (
		code       TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		short_name TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := conn.Exec(query); err != nil {
		return fmt.Errorf("failed to create stocks table: %w", err)
	}
	return nil
}

func createSentNoticeTable(conn *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS sent_notices (
		owner_id   TEXT NOT NULL,
		notice_key TEXT NOT NULL,
		sent_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (owner_id, notice_key)
	);
	CREATE INDEX IF NOT EXISTS idx_sent_notices_sent_at ON sent_notices(sent_at);
	`
	if _, err := conn.Exec(query); err != nil {
		return fmt.Errorf("failed to create sent_notices table: %w", err)
	}
	return nil
}
