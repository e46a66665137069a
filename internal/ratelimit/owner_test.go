package ratelimit

import (
	"testing"
	"time"
)

func newTestOwnerLimiter(maxTokens, refill float64) *OwnerLimiter {
	return NewOwnerLimiter(OwnerLimiterConfig{
		MaxTokens:     maxTokens,
		RefillRate:    refill,
		CleanupPeriod: time.Hour,
	})
}

func TestOwnerLimiter_Isolation(t *testing.T) {
	ol := newTestOwnerLimiter(1, 0.001)
	defer ol.Stop()

	if !ol.Allow("user:A") {
		t.Fatal("first request for A denied")
	}
	if ol.Allow("user:A") {
		t.Error("second request for A allowed, want denied")
	}

	// B has its own bucket
	if !ol.Allow("user:B") {
		t.Error("first request for B denied, want allowed")
	}
}

func TestOwnerLimiter_EmptyOwner(t *testing.T) {
	ol := newTestOwnerLimiter(1, 0.001)
	defer ol.Stop()

	for i := 0; i < 10; i++ {
		if !ol.Allow("") {
			t.Fatal("empty owner denied, want always allowed")
		}
	}
	if ol.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d after empty-owner requests, want 0", ol.ActiveCount())
	}
}

func TestOwnerLimiter_OnDrop(t *testing.T) {
	ol := newTestOwnerLimiter(1, 0.001)
	defer ol.Stop()

	drops := 0
	ol.OnDrop(func() { drops++ })

	ol.Allow("group:G")
	ol.Allow("group:G")
	ol.Allow("group:G")

	if drops != 2 {
		t.Errorf("drops = %d, want 2", drops)
	}
}

func TestOwnerLimiter_ActiveCount(t *testing.T) {
	ol := newTestOwnerLimiter(5, 0.001)
	defer ol.Stop()

	ol.Allow("user:A")
	ol.Allow("user:B")
	ol.Allow("room:C")

	if got := ol.ActiveCount(); got != 3 {
		t.Errorf("ActiveCount() = %d, want 3", got)
	}
}

func TestOwnerLimiter_Cleanup(t *testing.T) {
	ol := NewOwnerLimiter(OwnerLimiterConfig{
		MaxTokens:     1,
		RefillRate:    100, // refills to full almost immediately
		CleanupPeriod: 10 * time.Millisecond,
	})
	defer ol.Stop()

	ol.Allow("user:A")

	// Wait for the bucket to refill and the cleanup tick to pass
	deadline := time.Now().Add(time.Second)
	for ol.ActiveCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if got := ol.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount() = %d after cleanup, want 0", got)
	}
}

func TestOwnerLimiter_StopIdempotent(t *testing.T) {
	ol := newTestOwnerLimiter(1, 1)

	ol.Stop()
	ol.Stop() // must not panic
}
