// Package bookbuilding implements the 詢圈 (book building) query module
// over the securities association's e-document system.
package bookbuilding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/twmops/mops-linebot-go/internal/bot"
	"github.com/twmops/mops-linebot-go/internal/lineutil"
	"github.com/twmops/mops-linebot-go/internal/logger"
	mopscraper "github.com/twmops/mops-linebot-go/internal/scraper/mops"
	"github.com/twmops/mops-linebot-go/internal/stringutil"
)

// Module constants.
const (
	ModuleName = "bookbuilding"
	senderName = "詢圈小幫手"
)

var (
	validKeywords = []string{
		"詢圈", "圈購", "詢價圈購", "bookbuilding",
	}
	keywordRegex = bot.BuildKeywordRegex(validKeywords)
)

// Fetcher retrieves book building entries for a ROC year.
// *mopscraper.BookbuildingClient is the production implementation.
type Fetcher interface {
	FetchBookbuilding(ctx context.Context, year string) ([]mopscraper.Bookbuilding, error)
}

var _ Fetcher = (*mopscraper.BookbuildingClient)(nil)

// Handler handles book building queries.
type Handler struct {
	client Fetcher
	logger *logger.Logger
	now    func() time.Time
}

// NewHandler creates a new book building handler.
func NewHandler(client Fetcher, log *logger.Logger) *Handler {
	return &Handler{
		client: client,
		logger: log,
		now:    time.Now,
	}
}

// Name returns the module name.
func (h *Handler) Name() string {
	return ModuleName
}

// PostbackPrefix returns the postback routing prefix.
func (h *Handler) PostbackPrefix() string {
	return ModuleName + ":"
}

// CanHandle checks if the message is a book building query.
func (h *Handler) CanHandle(text string) bool {
	return keywordRegex.MatchString(strings.TrimSpace(text))
}

// HandleMessage handles book building queries. The optional argument
// is a ROC year; default is the current year.
func (h *Handler) HandleMessage(ctx context.Context, text string) []messaging_api.MessageInterface {
	sender := lineutil.GetSender(senderName, lineutil.IconBookbuilding)
	text = strings.TrimSpace(text)

	match := bot.MatchKeyword(keywordRegex, text)
	if match == "" {
		return []messaging_api.MessageInterface{}
	}

	year := bot.ExtractSearchTerm(text, match)
	if year == "" {
		year = h.currentROCYear()
	}
	if !stringutil.IsNumeric(year) || len(year) > 3 {
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithSender(
				fmt.Sprintf("年度「%s」格式有誤，請用民國年，如：詢圈 %s", year, h.currentROCYear()), sender),
		}
	}

	return h.handleYearQuery(ctx, year, sender)
}

// HandlePostback handles book building postbacks.
func (h *Handler) HandlePostback(ctx context.Context, data string) []messaging_api.MessageInterface {
	parts := strings.Split(data, bot.PostbackSplitChar)
	if parts[0] == "year" && len(parts) == 2 {
		sender := lineutil.GetSender(senderName, lineutil.IconBookbuilding)
		return h.handleYearQuery(ctx, parts[1], sender)
	}
	return []messaging_api.MessageInterface{}
}

func (h *Handler) handleYearQuery(ctx context.Context, year string, sender *messaging_api.Sender) []messaging_api.MessageInterface {
	entries, err := h.client.FetchBookbuilding(ctx, year)
	if err != nil {
		h.logger.WithModule(ModuleName).WithError(err).Errorf("Bookbuilding query failed")
		return []messaging_api.MessageInterface{
			lineutil.ErrorMessageWithDetailAndSender("詢圈資料查詢失敗，請稍後再試。", sender),
		}
	}

	if len(entries) == 0 {
		msg := lineutil.NewTextMessageWithQuickReply(
			fmt.Sprintf("📖 %s 年度目前沒有詢圈案件", year),
			sender,
			h.prevYearQuickReply(year),
		)
		return []messaging_api.MessageInterface{msg}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📖 %s 年度詢圈案件（%d 件）", year, len(entries))
	shown := 0
	for _, e := range entries {
		block := lineutil.FormatBookbuilding(e)
		if b.Len()+len(block)+2 > lineutil.TextListSafeBuffer {
			break
		}
		b.WriteString("\n\n")
		b.WriteString(block)
		shown++
	}
	if shown < len(entries) {
		fmt.Fprintf(&b, "\n\n⋯ 僅顯示前 %d 件", shown)
	}

	msg := lineutil.NewTextMessageWithQuickReply(b.String(), sender, h.prevYearQuickReply(year))
	return []messaging_api.MessageInterface{msg}
}

func (h *Handler) prevYearQuickReply(year string) lineutil.QuickReplyItem {
	prev := year
	var y int
	if _, err := fmt.Sscanf(year, "%d", &y); err == nil {
		prev = fmt.Sprintf("%d", y-1)
	}
	return lineutil.QuickReplyItem{
		Action: lineutil.NewPostbackAction("📖 查 "+prev+" 年度", bot.BuildPostback(ModuleName, "year", prev)),
	}
}

func (h *Handler) currentROCYear() string {
	return fmt.Sprintf("%d", h.now().In(mopscraper.Taipei).Year()-1911)
}
