package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/twmops/mops-linebot-go/internal/scraper/twstock"
)

// SaveCompanies replaces the cached company directory in one transaction.
// The cache seeds lookups at startup before the first live refresh.
func (db *DB) SaveCompanies(ctx context.Context, companies []twstock.Company) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM stocks"); err != nil {
		return fmt.Errorf("failed to clear stocks cache: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO stocks (code, name, short_name, updated_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare stocks insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, c := range companies {
		if _, err := stmt.ExecContext(ctx, c.Code, c.Name, c.ShortName, now); err != nil {
			return fmt.Errorf("failed to insert stock %s: %w", c.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit stocks cache: %w", err)
	}
	return nil
}

// LoadCompanies returns the cached company directory ordered by code.
// An empty cache yields an empty slice and no error.
func (db *DB) LoadCompanies(ctx context.Context) ([]twstock.Company, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT code, name, short_name FROM stocks ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("failed to query stocks cache: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var companies []twstock.Company
	for rows.Next() {
		var c twstock.Company
		if err := rows.Scan(&c.Code, &c.Name, &c.ShortName); err != nil {
			return nil, fmt.Errorf("failed to scan stock row: %w", err)
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stock rows: %w", err)
	}
	return companies, nil
}
