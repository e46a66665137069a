package ratelimit

import (
	"sync"
	"time"
)

// OwnerLimiterConfig configures an OwnerLimiter instance.
type OwnerLimiterConfig struct {
	MaxTokens     float64       // Maximum tokens per owner (burst capacity)
	RefillRate    float64       // Tokens refilled per second
	CleanupPeriod time.Duration // How often to clean up inactive limiters
}

// OwnerLimiter tracks rate limits per chat owner (user, group or room).
// It creates a separate token bucket for each owner and automatically
// removes buckets that have refilled to capacity.
type OwnerLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
	config   OwnerLimiterConfig
	onDrop   func()
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewOwnerLimiter creates a new per-owner rate limiter.
// Call Stop when done to release the cleanup goroutine.
func NewOwnerLimiter(cfg OwnerLimiterConfig) *OwnerLimiter {
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = 10 * time.Minute
	}
	ol := &OwnerLimiter{
		limiters: make(map[string]*Limiter),
		config:   cfg,
		stopCh:   make(chan struct{}),
	}

	go ol.cleanupLoop()

	return ol
}

// OnDrop sets a callback invoked whenever a request is dropped.
func (ol *OwnerLimiter) OnDrop(fn func()) {
	ol.onDrop = fn
}

// Allow checks if a request from the given owner is allowed.
// Returns true if allowed (token consumed), false if the limit is exceeded.
// An empty owner is always allowed.
func (ol *OwnerLimiter) Allow(ownerID string) bool {
	if ownerID == "" {
		return true
	}

	ol.mu.RLock()
	limiter, exists := ol.limiters[ownerID]
	ol.mu.RUnlock()

	if !exists {
		ol.mu.Lock()
		// Double-check after acquiring write lock
		limiter, exists = ol.limiters[ownerID]
		if !exists {
			limiter = New(ol.config.MaxTokens, ol.config.RefillRate)
			ol.limiters[ownerID] = limiter
		}
		ol.mu.Unlock()
	}

	allowed := limiter.Allow()
	if !allowed && ol.onDrop != nil {
		ol.onDrop()
	}
	return allowed
}

// ActiveCount returns the number of owners with live limiters.
func (ol *OwnerLimiter) ActiveCount() int {
	ol.mu.RLock()
	defer ol.mu.RUnlock()
	return len(ol.limiters)
}

// cleanupLoop periodically removes limiters that have fully refilled.
func (ol *OwnerLimiter) cleanupLoop() {
	ticker := time.NewTicker(ol.config.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ol.stopCh:
			return
		case <-ticker.C:
			ol.mu.Lock()
			for key, limiter := range ol.limiters {
				if limiter.IsFull() {
					delete(ol.limiters, key)
				}
			}
			ol.mu.Unlock()
		}
	}
}

// Stop stops the cleanup goroutine. Safe to call multiple times.
func (ol *OwnerLimiter) Stop() {
	ol.stopOnce.Do(func() {
		close(ol.stopCh)
	})
}
