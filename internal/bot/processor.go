package bot

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/twmops/mops-linebot-go/internal/config"
	"github.com/twmops/mops-linebot-go/internal/ctxutil"
	"github.com/twmops/mops-linebot-go/internal/lineutil"
	"github.com/twmops/mops-linebot-go/internal/logger"
	"github.com/twmops/mops-linebot-go/internal/metrics"
	"github.com/twmops/mops-linebot-go/internal/ratelimit"
)

// helpKeywords trigger the usage overview regardless of module routing.
var helpKeywords = []string{"使用說明", "help", "幫助"}

// Processor handles LINE events: rate limiting, input sanitization and
// dispatch to the registered handlers.
type Processor struct {
	registry     *Registry
	ownerLimiter *ratelimit.OwnerLimiter
	logger       *logger.Logger
	metrics      *metrics.Metrics

	webhookTimeout time.Duration
}

// ProcessorConfig holds dependencies for creating a Processor.
type ProcessorConfig struct {
	Registry     *Registry
	OwnerLimiter *ratelimit.OwnerLimiter
	Logger       *logger.Logger
	Metrics      *metrics.Metrics
	BotConfig    *config.BotConfig
}

// NewProcessor creates a new event processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	return &Processor{
		registry:       cfg.Registry,
		ownerLimiter:   cfg.OwnerLimiter,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		webhookTimeout: cfg.BotConfig.WebhookTimeout,
	}
}

// ProcessMessage handles a text message event.
func (p *Processor) ProcessMessage(ctx context.Context, event webhook.MessageEvent) ([]messaging_api.MessageInterface, error) {
	ownerID := OwnerID(event.Source)
	ctx = ctxutil.WithOwnerID(ctx, ownerID)
	ctx = ctxutil.WithChatID(ctx, GetChatID(event.Source))

	if allowed, rateLimitMsg := p.checkRateLimit(event.Source, ownerID); !allowed {
		return rateLimitMsg, nil
	}

	if event.Message.GetType() != "text" {
		return nil, nil
	}
	textMsg, ok := event.Message.(webhook.TextMessageContent)
	if !ok {
		return nil, errors.New("failed to cast message to text")
	}

	text := strings.TrimSpace(textMsg.Text)
	if text == "" {
		return nil, nil
	}
	text = sanitizeText(text)
	if text == "" {
		return nil, nil
	}

	if slices.ContainsFunc(helpKeywords, func(k string) bool {
		return strings.EqualFold(text, k)
	}) {
		return p.usageMessages(ctx), nil
	}

	processCtx, cancel := context.WithTimeout(ctx, p.webhookTimeout)
	defer cancel()

	if msgs, module := p.registry.DispatchMessage(processCtx, text); len(msgs) > 0 {
		p.logger.Debugf("Message handled by %s module", module)
		return msgs, nil
	}

	return p.handleUnmatchedMessage(processCtx, event.Source, textMsg)
}

// ProcessPostback handles a postback event.
func (p *Processor) ProcessPostback(ctx context.Context, event webhook.PostbackEvent) ([]messaging_api.MessageInterface, error) {
	ownerID := OwnerID(event.Source)
	ctx = ctxutil.WithOwnerID(ctx, ownerID)
	ctx = ctxutil.WithChatID(ctx, GetChatID(event.Source))

	if allowed, rateLimitMsg := p.checkRateLimit(event.Source, ownerID); !allowed {
		return rateLimitMsg, nil
	}

	data := strings.TrimSpace(event.Postback.Data)
	if data == "" {
		p.logger.Warnf("Empty postback data")
		return nil, nil
	}
	if len(data) > lineutil.MaxPostbackData {
		p.logger.Warnf("Postback data too long: %d bytes", len(data))
		sender := lineutil.GetSender("系統小幫手", lineutil.IconUsage)
		return []messaging_api.MessageInterface{
			lineutil.ErrorMessageWithDetailAndSender("操作資料異常，請重新使用功能。", sender),
		}, nil
	}

	processCtx, cancel := context.WithTimeout(ctx, p.webhookTimeout)
	defer cancel()

	if msgs, module := p.registry.DispatchPostback(processCtx, data); len(msgs) > 0 {
		p.logger.Debugf("Postback handled by %s module", module)
		return msgs, nil
	}

	sender := lineutil.GetSender("系統小幫手", lineutil.IconUsage)
	return []messaging_api.MessageInterface{
		lineutil.NewTextMessageWithSender("操作已過期或無效", sender),
	}, nil
}

// ProcessFollow handles a follow event with a welcome message.
func (p *Processor) ProcessFollow(ctx context.Context, _ webhook.FollowEvent) ([]messaging_api.MessageInterface, error) {
	p.logger.Infof("New user followed the bot")

	sender := lineutil.GetSender("公告查詢小工具", lineutil.IconUsage)
	messages := []messaging_api.MessageInterface{
		lineutil.NewTextMessageWithSender("泥好~~我是公開資訊觀測站查詢小工具📢", sender),
		lineutil.NewTextMessageWithSender("輸入「使用說明」查看完整功能\n或直接輸入「今日 台積電」試試", sender),
		lineutil.NewTextMessageWithSender("資料來源：公開資訊觀測站\n臺灣證券交易所\n中華民國證券商業同業公會", sender),
	}
	return messages, nil
}

// handleUnmatchedMessage handles text no handler recognized. Group
// chats stay silent unless the bot is mentioned; personal chats get
// the usage overview.
func (p *Processor) handleUnmatchedMessage(ctx context.Context, source webhook.SourceInterface, textMsg webhook.TextMessageContent) ([]messaging_api.MessageInterface, error) {
	if !IsPersonalChat(source) {
		if !IsBotMentioned(textMsg) {
			return nil, nil
		}
		// Mentioned with an unrecognized command: retry without the
		// mention text in case the command is hiding behind it.
		stripped := sanitizeText(removeBotMentions(textMsg.Text, textMsg.Mention))
		if stripped != "" {
			if msgs, _ := p.registry.DispatchMessage(ctx, stripped); len(msgs) > 0 {
				return msgs, nil
			}
		}
	}
	return p.usageMessages(ctx), nil
}

// usageMessages delegates to the usage module when registered, with a
// minimal fallback so help never goes unanswered.
func (p *Processor) usageMessages(ctx context.Context) []messaging_api.MessageInterface {
	if h := p.registry.GetHandler("usage"); h != nil {
		if msgs := h.HandleMessage(ctx, helpKeywords[0]); len(msgs) > 0 {
			return msgs
		}
	}
	sender := lineutil.GetSender("系統小幫手", lineutil.IconUsage)
	return []messaging_api.MessageInterface{
		lineutil.NewTextMessageWithSender("輸入「使用說明」查看功能介紹", sender),
	}
}

// checkRateLimit drops events from owners sending too fast. Personal
// chats get a notice, group chats are dropped silently.
func (p *Processor) checkRateLimit(source webhook.SourceInterface, ownerID string) (bool, []messaging_api.MessageInterface) {
	if p.ownerLimiter == nil || p.ownerLimiter.Allow(ownerID) {
		return true, nil
	}

	logOwnerID := ownerID
	if len(ownerID) > 14 {
		logOwnerID = ownerID[:14] + "..."
	}
	p.logger.Warnf("Rate limit exceeded for %s", logOwnerID)

	if IsPersonalChat(source) {
		sender := lineutil.GetSender("系統小幫手", lineutil.IconUsage)
		return false, []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithSender("⏳ 訊息過於頻繁，請稍後再試", sender),
		}
	}
	return false, nil
}
