package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Add inserts a watch entry, refreshing the stored name on conflict so
// renamed companies show their current name in listings.
func (db *DB) Add(ctx context.Context, ownerID, stockCode, stockName string) error {
	query := `
	INSERT INTO watchlists (owner_id, stock_code, stock_name)
	VALUES (?, ?, ?)
	ON CONFLICT(owner_id, stock_code) DO UPDATE SET
		stock_name = excluded.stock_name
	`
	if _, err := db.conn.ExecContext(ctx, query, ownerID, stockCode, stockName); err != nil {
		return fmt.Errorf("failed to add watch entry: %w", err)
	}
	return nil
}

// Remove deletes one watch entry. It reports whether an entry existed.
func (db *DB) Remove(ctx context.Context, ownerID, stockCode string) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		"DELETE FROM watchlists WHERE owner_id = ? AND stock_code = ?",
		ownerID, stockCode)
	if err != nil {
		return false, fmt.Errorf("failed to remove watch entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// List returns the owner's watch entries ordered by stock code.
func (db *DB) List(ctx context.Context, ownerID string) ([]WatchEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT owner_id, stock_code, stock_name, created_at
		FROM watchlists
		WHERE owner_id = ?
		ORDER BY stock_code`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list watch entries: %w", err)
	}
	defer rows.Close()

	var entries []WatchEntry
	for rows.Next() {
		var e WatchEntry
		if err := rows.Scan(&e.OwnerID, &e.StockCode, &e.StockName, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watch entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Clear removes all of the owner's watch entries and returns the count.
func (db *DB) Clear(ctx context.Context, ownerID string) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		"DELETE FROM watchlists WHERE owner_id = ?", ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear watchlist: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the number of stocks the owner is watching.
func (db *DB) Count(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM watchlists WHERE owner_id = ?", ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count watch entries: %w", err)
	}
	return n, nil
}

// Owners returns every owner with at least one watch entry.
func (db *DB) Owners(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT DISTINCT owner_id FROM watchlists ORDER BY owner_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}

// MarkSent records an announcement as delivered to the owner.
func (db *DB) MarkSent(ctx context.Context, ownerID, noticeKey string) error {
	query := `
	INSERT INTO sent_notices (owner_id, notice_key)
	VALUES (?, ?)
	ON CONFLICT(owner_id, notice_key) DO NOTHING
	`
	if _, err := db.conn.ExecContext(ctx, query, ownerID, noticeKey); err != nil {
		return fmt.Errorf("failed to mark notice sent: %w", err)
	}
	return nil
}

// WasSent reports whether the announcement was already delivered.
func (db *DB) WasSent(ctx context.Context, ownerID, noticeKey string) (bool, error) {
	var one int
	err := db.conn.QueryRowContext(ctx,
		"SELECT 1 FROM sent_notices WHERE owner_id = ? AND notice_key = ?",
		ownerID, noticeKey).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check sent notice: %w", err)
	}
	return true, nil
}

// PruneBefore deletes sent-notice rows older than cutoffDays.
func (db *DB) PruneBefore(ctx context.Context, cutoffDays int) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		"DELETE FROM sent_notices WHERE sent_at < datetime('now', ?)",
		fmt.Sprintf("-%d days", cutoffDays))
	if err != nil {
		return 0, fmt.Errorf("failed to prune sent notices: %w", err)
	}
	return result.RowsAffected()
}
