package storage

import (
	"context"

	"github.com/twmops/mops-linebot-go/internal/scraper/twstock"
)

// WatchlistRepository manages per-owner watched stocks.
type WatchlistRepository interface {
	Add(ctx context.Context, ownerID, stockCode, stockName string) error
	Remove(ctx context.Context, ownerID, stockCode string) (bool, error)
	List(ctx context.Context, ownerID string) ([]WatchEntry, error)
	Clear(ctx context.Context, ownerID string) (int64, error)
	Count(ctx context.Context, ownerID string) (int, error)
	Owners(ctx context.Context) ([]string, error)
}

// SentNoticeRepository tracks which announcements were already pushed.
type SentNoticeRepository interface {
	MarkSent(ctx context.Context, ownerID, noticeKey string) error
	WasSent(ctx context.Context, ownerID, noticeKey string) (bool, error)
	PruneBefore(ctx context.Context, cutoffDays int) (int64, error)
}

// StockRepository caches the company directory between restarts.
type StockRepository interface {
	SaveCompanies(ctx context.Context, companies []twstock.Company) error
	LoadCompanies(ctx context.Context) ([]twstock.Company, error)
}

// Compile-time checks that DB satisfies the repository interfaces.
var (
	_ WatchlistRepository  = (*DB)(nil)
	_ SentNoticeRepository = (*DB)(nil)
	_ StockRepository      = (*DB)(nil)
)
