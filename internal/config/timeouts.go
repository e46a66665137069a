// Package config provides centralized timeout constants for the application.
//
// These values are tuned around:
//   - LINE Messaging API constraints (reply token expiration, webhook timeouts)
//   - MOPS / TWSE response times (historical queries can fan out into many
//     sub-window requests, each taking seconds)
//   - SQLite performance characteristics (WAL mode, busy timeout)
package config

import "time"

// LINE API limits
const (
	// LINEMaxMessagesPerReply is the LINE Messaging API limit per reply.
	LINEMaxMessagesPerReply = 5

	// LINEMaxTextMessageLength is the LINE Messaging API text message limit.
	LINEMaxTextMessageLength = 5000
)

// Webhook timeouts
const (
	// WebhookProcessing is the timeout for processing a single webhook event.
	// This includes bot message handling, database queries, and potentially a
	// multi-window historical retrieval against MOPS.
	//
	// Set to 60s because:
	//   - LINE loading animation shows for up to 60s
	//   - A bisected range query may issue a dozen upstream requests
	WebhookProcessing = 60 * time.Second

	// WebhookHTTPRead is the HTTP server read timeout for webhook requests.
	// Should be short since LINE sends small JSON payloads.
	WebhookHTTPRead = 10 * time.Second

	// WebhookHTTPWrite is the HTTP server write timeout.
	// Should accommodate WebhookProcessing + response serialization.
	WebhookHTTPWrite = 65 * time.Second

	// WebhookHTTPIdle is the HTTP server idle timeout for keep-alive connections.
	WebhookHTTPIdle = 120 * time.Second
)

// Scraper timeouts
const (
	// ScraperRequest is the timeout for a single HTTP request to MOPS/TWSE.
	// The ezsearch endpoint gets slow near the daily disclosure rush.
	ScraperRequest = 30 * time.Second

	// ScraperRetryInitial is the initial delay before retrying a failed request.
	// Uses exponential backoff: 2s -> 4s -> 8s
	ScraperRetryInitial = 2 * time.Second

	// ScraperRateLimit is the minimum delay between consecutive upstream requests.
	// Keeps the bisection fan-out from hammering MOPS.
	ScraperRateLimit = 500 * time.Millisecond
)

// Database timeouts
const (
	// DatabaseBusyTimeout is SQLite busy_timeout pragma value.
	DatabaseBusyTimeout = 30 * time.Second

	// DatabaseConnMaxLifetime is the maximum lifetime of database connections.
	DatabaseConnMaxLifetime = time.Hour
)

// Background job intervals
const (
	// DirectoryRefreshInitialDelay is the delay before the first company
	// directory refresh, letting the server come up on cached data first.
	DirectoryRefreshInitialDelay = 1 * time.Minute

	// SnapshotInitialDelay is the delay before the first R2 snapshot upload.
	SnapshotInitialDelay = 10 * time.Minute

	// RateLimiterCleanupInterval is how often inactive owner rate limiters are cleaned.
	RateLimiterCleanupInterval = 5 * time.Minute
)

// Graceful shutdown
const (
	// GracefulShutdown is the timeout for graceful server shutdown.
	GracefulShutdown = 30 * time.Second
)
