// Package webhook provides LINE webhook handling: signature-checked
// parsing, async event processing and reply delivery.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/twmops/mops-linebot-go/internal/bot"
	"github.com/twmops/mops-linebot-go/internal/config"
	"github.com/twmops/mops-linebot-go/internal/ctxutil"
	"github.com/twmops/mops-linebot-go/internal/lineutil"
	"github.com/twmops/mops-linebot-go/internal/logger"
	"github.com/twmops/mops-linebot-go/internal/metrics"
	"github.com/twmops/mops-linebot-go/internal/ratelimit"
	"github.com/twmops/mops-linebot-go/internal/sentry"
)

// Handler handles LINE webhook events.
type Handler struct {
	channelSecret string
	client        *messaging_api.MessagingApiAPI
	metrics       *metrics.Metrics
	logger        *logger.Logger
	processor     *bot.Processor
	rateLimiter   *ratelimit.Limiter // global reply rate limit
	wg            sync.WaitGroup

	maxMessagesPerReply int
	maxEventsPerWebhook int
	minReplyTokenLength int
}

// HandlerConfig holds configuration for creating a Handler.
type HandlerConfig struct {
	ChannelSecret string
	ChannelToken  string
	BotConfig     *config.BotConfig
	Metrics       *metrics.Metrics
	Logger        *logger.Logger
	Processor     *bot.Processor
}

// NewHandler creates a new webhook handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	client, err := messaging_api.NewMessagingApiAPI(cfg.ChannelToken)
	if err != nil {
		return nil, fmt.Errorf("create messaging API client: %w", err)
	}

	h := &Handler{
		channelSecret:       cfg.ChannelSecret,
		client:              client,
		metrics:             cfg.Metrics,
		logger:              cfg.Logger,
		processor:           cfg.Processor,
		maxMessagesPerReply: cfg.BotConfig.MaxMessagesPerReply,
		maxEventsPerWebhook: cfg.BotConfig.MaxEventsPerWebhook,
		minReplyTokenLength: cfg.BotConfig.MinReplyTokenLength,
	}
	h.rateLimiter = ratelimit.New(cfg.BotConfig.GlobalRateLimitRPS, cfg.BotConfig.GlobalRateLimitRPS)

	return h, nil
}

// Handle is the Gin handler for the webhook endpoint.
func (h *Handler) Handle(c *gin.Context) {
	cb, err := webhook.ParseRequest(h.channelSecret, c.Request)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			h.logger.Warnf("Invalid webhook signature")
			c.Status(http.StatusBadRequest)
		} else {
			h.logger.WithError(err).Errorf("Failed to parse webhook request")
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	// LINE expects 200 immediately; processing happens async.
	c.Status(http.StatusOK)

	start := time.Now()
	if len(cb.Events) > h.maxEventsPerWebhook {
		h.logger.Warnf("Webhook batch of %d events truncated to %d", len(cb.Events), h.maxEventsPerWebhook)
		cb.Events = cb.Events[:h.maxEventsPerWebhook]
	}

	// Copy events so the batch survives the HTTP response lifecycle.
	events := make([]webhook.EventInterface, len(cb.Events))
	copy(events, cb.Events)

	h.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Errorf("Panic in async event processing: %v", r)
				sentry.CaptureException(fmt.Errorf("webhook event panic: %v", r))
			}
		}()
		ctx := context.Background()
		for _, event := range events {
			h.processEvent(ctx, event, start)
		}
	})
}

// processEvent handles a single webhook event.
func (h *Handler) processEvent(ctx context.Context, event webhook.EventInterface, webhookStart time.Time) {
	eventStart := time.Now()
	var messages []messaging_api.MessageInterface
	var eventType string
	var err error

	if eventID := extractEventID(event); eventID != "" {
		ctx = ctxutil.WithRequestID(ctx, eventID)
	}
	log := h.logger
	if id, ok := ctxutil.GetRequestID(ctx); ok {
		log = log.WithRequestID(id)
	}

	if h.shouldShowLoading(event) {
		if loadErr := h.showLoadingAnimation(event); loadErr != nil {
			log.WithError(loadErr).Warnf("Failed to show loading animation")
		}
	}

	switch e := event.(type) {
	case webhook.MessageEvent:
		eventType = "message"
		messages, err = h.processor.ProcessMessage(ctx, e)
	case webhook.PostbackEvent:
		eventType = "postback"
		messages, err = h.processor.ProcessPostback(ctx, e)
	case webhook.FollowEvent:
		eventType = "follow"
		messages, err = h.processor.ProcessFollow(ctx, e)
	default:
		log.Debugf("Unsupported event type %T", e)
		return
	}

	status := "success"
	if err != nil {
		status = "error"
		log.WithError(err).Errorf("Failed to handle %s event", eventType)
		sentry.CaptureExceptionWithContext(ctx, err)
	}
	if h.metrics != nil {
		h.metrics.RecordWebhook(eventType, status, time.Since(eventStart).Seconds())
	}

	if len(messages) > 0 && err == nil {
		h.reply(ctx, log, event, eventType, eventStart, messages)
	}

	log.Infof("%s event processed in %dms (batch %dms)",
		eventType, time.Since(eventStart).Milliseconds(), time.Since(webhookStart).Milliseconds())
}

// reply delivers messages for the event's reply token.
func (h *Handler) reply(ctx context.Context, log *logger.Logger, event webhook.EventInterface, eventType string, eventStart time.Time, messages []messaging_api.MessageInterface) {
	if len(messages) > h.maxMessagesPerReply {
		log.Warnf("Reply of %d messages truncated to %d", len(messages), h.maxMessagesPerReply)
		messages = messages[:h.maxMessagesPerReply-1]
		sender := lineutil.GetSender("系統小幫手", lineutil.IconUsage)
		messages = append(messages, lineutil.NewTextMessageWithSender(
			"ℹ️ 由於訊息數量限制，部分內容未完整顯示\n請縮小查詢範圍", sender))
	}

	replyToken := getReplyToken(event)
	if replyToken == "" || len(replyToken) < h.minReplyTokenLength {
		log.Debugf("Missing or malformed reply token, skipping reply")
		return
	}

	if !h.rateLimiter.Allow() {
		log.Warnf("Global reply rate limit hit, waiting")
		if h.metrics != nil {
			h.metrics.RecordRateLimiterDrop("global")
		}
		if err := h.rateLimiter.Wait(ctx); err != nil {
			return
		}
	}

	if _, err := h.client.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   messages,
	}); err != nil {
		switch {
		case strings.Contains(err.Error(), "Invalid reply token"):
			log.WithError(err).Debugf("Reply token already used or invalid")
		default:
			log.WithError(err).Errorf("Failed to send reply")
		}
		if h.metrics != nil {
			h.metrics.RecordWebhook(eventType, "reply_error", time.Since(eventStart).Seconds())
		}
	}
}

func extractEventID(event webhook.EventInterface) string {
	switch e := event.(type) {
	case webhook.MessageEvent:
		return e.WebhookEventId
	case webhook.PostbackEvent:
		return e.WebhookEventId
	case webhook.FollowEvent:
		return e.WebhookEventId
	default:
		return ""
	}
}

// shouldShowLoading determines if the loading animation should be shown
// for an event. Group text without an @Bot mention never answers, so it
// never spins.
func (h *Handler) shouldShowLoading(event webhook.EventInterface) bool {
	switch e := event.(type) {
	case webhook.MessageEvent:
		return h.shouldShowLoadingForMessage(e)
	case webhook.PostbackEvent, webhook.FollowEvent:
		return true
	default:
		return false
	}
}

func (h *Handler) shouldShowLoadingForMessage(e webhook.MessageEvent) bool {
	// Personal chats always get a response
	if _, ok := e.Source.(webhook.UserSource); ok {
		return true
	}

	if e.Message.GetType() != "text" {
		return false
	}
	textMsg, ok := e.Message.(webhook.TextMessageContent)
	if !ok {
		return false
	}
	return bot.IsBotMentioned(textMsg)
}

// showLoadingAnimation shows a loading circle animation in the chat.
func (h *Handler) showLoadingAnimation(event webhook.EventInterface) error {
	var source webhook.SourceInterface
	switch e := event.(type) {
	case webhook.MessageEvent:
		source = e.Source
	case webhook.PostbackEvent:
		source = e.Source
	case webhook.FollowEvent:
		source = e.Source
	default:
		return nil
	}
	chatID := bot.GetChatID(source)
	if chatID == "" {
		return nil
	}

	// LINE API: loadingSeconds must be 5-60, a multiple of 5. Max it
	// out to cover the webhook processing timeout.
	req := &messaging_api.ShowLoadingAnimationRequest{
		ChatId:         chatID,
		LoadingSeconds: 60,
	}
	if _, err := h.client.ShowLoadingAnimation(req); err != nil {
		return fmt.Errorf("failed to show loading animation: %w", err)
	}
	return nil
}

func getReplyToken(event webhook.EventInterface) string {
	switch e := event.(type) {
	case webhook.MessageEvent:
		return e.ReplyToken
	case webhook.PostbackEvent:
		return e.ReplyToken
	case webhook.FollowEvent:
		return e.ReplyToken
	default:
		return ""
	}
}

// Shutdown waits for in-flight async event processing to finish.
func (h *Handler) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
