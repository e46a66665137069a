// Package sentry wires the Sentry SDK to Better Stack error tracking.
// Better Stack speaks the Sentry ingest protocol, so the SDK only needs
// a DSN pointed at its host.
package sentry

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// Config holds Sentry configuration.
type Config struct {
	Token       string  // Better Stack Errors token, empty disables Sentry
	Host        string  // ingesting host, e.g. errors.betterstack.com
	Environment string  // deployment environment
	Release     string  // application release version
	SampleRate  float64 // error sampling 0.0-1.0, <=0 means 1.0
	Debug       bool    // SDK debug logging
}

// Initialize sets up the Sentry SDK. With an empty token it does
// nothing and returns nil, leaving error tracking disabled.
func Initialize(cfg Config) error {
	if cfg.Token == "" {
		return nil
	}
	if cfg.Host == "" {
		return fmt.Errorf("sentry host is required when token is provided")
	}

	// Better Stack ignores the project ID but the SDK requires one.
	dsn := fmt.Sprintf("https://%s@%s/1", cfg.Token, cfg.Host)

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       sampleRate,
		Debug:            cfg.Debug,
		AttachStacktrace: true,
	})
}

// Flush waits for buffered events to reach the server. It reports
// whether everything was sent within the timeout.
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// IsEnabled reports whether Sentry was initialized with a client.
func IsEnabled() bool {
	return sentry.CurrentHub().Client() != nil
}

// CaptureException sends an error to Sentry. A no-op when disabled.
func CaptureException(err error) {
	sentry.CaptureException(err)
}

// CaptureExceptionWithContext sends an error using the hub bound to
// ctx when one exists, so gin middleware scopes are honored.
func CaptureExceptionWithContext(ctx context.Context, err error) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.CaptureException(err)
}
