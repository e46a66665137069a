package storage

import "time"

// WatchEntry is one watched stock for a chat owner. OwnerID carries the
// "user:", "group:" or "room:" prefix so a stock watched in a group chat
// stays independent of the same user's personal watchlist.
type WatchEntry struct {
	OwnerID   string
	StockCode string
	StockName string
	CreatedAt time.Time
}

// SentNotice records that an announcement was already pushed to an
// owner, keyed by the announcement identity, so the notifier never
// sends the same disclosure twice.
type SentNotice struct {
	OwnerID   string
	NoticeKey string
	SentAt    time.Time
}
