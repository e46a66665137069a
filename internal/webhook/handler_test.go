package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/twmops/mops-linebot-go/internal/bot"
	"github.com/twmops/mops-linebot-go/internal/config"
	"github.com/twmops/mops-linebot-go/internal/logger"
	"github.com/twmops/mops-linebot-go/internal/metrics"
	"github.com/twmops/mops-linebot-go/internal/modules/usage"
	"github.com/twmops/mops-linebot-go/internal/modules/watchlist"
	"github.com/twmops/mops-linebot-go/internal/ratelimit"
	"github.com/twmops/mops-linebot-go/internal/stockdir"
	"github.com/twmops/mops-linebot-go/internal/storage"
	"github.com/twmops/mops-linebot-go/internal/scraper/twstock"
)

const testChannelSecret = "test_channel_secret"

type staticSource struct{}

func (staticSource) FetchAll(ctx context.Context) ([]twstock.Company, error) {
	return []twstock.Company{
		{Code: "2330", Name: "台灣積體電路製造股份有限公司", ShortName: "台積電"},
	}, nil
}

func (staticSource) QuoteName(ctx context.Context, code string) (string, error) {
	return "", errors.New("quote unavailable")
}

func setupTestHandler(t *testing.T) *Handler {
	t.Helper()

	db, err := storage.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	log := logger.New("info")

	directory := stockdir.New(staticSource{}, log, m)
	if err := directory.Refresh(context.Background()); err != nil {
		t.Fatalf("Failed to seed directory: %v", err)
	}

	botRegistry := bot.NewRegistry()
	botRegistry.Register(watchlist.NewHandler(db, directory, log, 50))
	botRegistry.Register(usage.NewHandler(log))

	botCfg := config.BotConfig{
		WebhookTimeout:            30 * time.Second,
		UserRateLimitBurst:        15.0,
		UserRateLimitRefillPerSec: 0.1,
		GlobalRateLimitRPS:        100.0,
		MaxMessagesPerReply:       5,
		MaxEventsPerWebhook:       100,
		MinReplyTokenLength:       10,
		MaxRangeDays:              90,
		MaxReplyChars:             4800,
		MaxCandidates:             10,
		MaxWatchedStocks:          50,
	}

	ownerLimiter := ratelimit.NewOwnerLimiter(ratelimit.OwnerLimiterConfig{
		MaxTokens:     botCfg.UserRateLimitBurst,
		RefillRate:    botCfg.UserRateLimitRefillPerSec,
		CleanupPeriod: 5 * time.Minute,
	})
	t.Cleanup(ownerLimiter.Stop)

	processor := bot.NewProcessor(bot.ProcessorConfig{
		Registry:     botRegistry,
		OwnerLimiter: ownerLimiter,
		Logger:       log,
		Metrics:      m,
		BotConfig:    &botCfg,
	})

	handler, err := NewHandler(HandlerConfig{
		ChannelSecret: testChannelSecret,
		ChannelToken:  "test_channel_token",
		BotConfig:     &botCfg,
		Metrics:       m,
		Logger:        log,
		Processor:     processor,
	})
	if err != nil {
		t.Fatalf("Failed to create handler: %v", err)
	}
	return handler
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestHandlerInitialization(t *testing.T) {
	t.Parallel()
	handler := setupTestHandler(t)

	if handler.channelSecret != testChannelSecret {
		t.Errorf("Expected channel secret %q, got %q", testChannelSecret, handler.channelSecret)
	}
	if handler.client == nil {
		t.Error("Expected client to be initialized")
	}
	if handler.processor == nil {
		t.Error("Expected processor to be initialized")
	}
	if handler.rateLimiter == nil {
		t.Error("Expected global rate limiter to be initialized")
	}
}

func TestHandleInvalidSignature(t *testing.T) {
	t.Parallel()
	handler := setupTestHandler(t)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webhook", handler.Handle)

	body := []byte(`{"events":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Line-Signature", "invalid_signature")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestHandleValidSignatureEmptyBatch(t *testing.T) {
	t.Parallel()
	handler := setupTestHandler(t)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webhook", handler.Handle)

	body := []byte(`{"destination":"Udeadbeef","events":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Line-Signature", signBody(testChannelSecret, body))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := handler.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestHandleUnknownEventType(t *testing.T) {
	t.Parallel()
	handler := setupTestHandler(t)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webhook", handler.Handle)

	// Unfollow events are parsed but not dispatched; the handler must
	// accept and skip them without replying.
	body := []byte(`{"destination":"Udeadbeef","events":[{"type":"unfollow","mode":"active","timestamp":1700000000000,"source":{"type":"user","userId":"U0123456789abcdef"},"webhookEventId":"01HEVENT","deliveryContext":{"isRedelivery":false}}]}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Line-Signature", signBody(testChannelSecret, body))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := handler.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestEventBatchTruncation(t *testing.T) {
	t.Parallel()
	maxEvents := 100
	events := make([]any, 150)

	if len(events) > maxEvents {
		events = events[:maxEvents]
	}
	if len(events) != maxEvents {
		t.Errorf("Expected %d events after limiting, got %d", maxEvents, len(events))
	}
}

func TestShutdownIdle(t *testing.T) {
	t.Parallel()
	handler := setupTestHandler(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := handler.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown of idle handler failed: %v", err)
	}
}
