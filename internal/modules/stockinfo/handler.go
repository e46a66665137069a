// Package stockinfo implements company code/name lookup against the
// in-memory directory, with candidate suggestions for fuzzy input.
package stockinfo

import (
	"context"
	"fmt"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/twmops/mops-linebot-go/internal/bot"
	errsx "github.com/twmops/mops-linebot-go/internal/errors"
	"github.com/twmops/mops-linebot-go/internal/lineutil"
	"github.com/twmops/mops-linebot-go/internal/logger"
	"github.com/twmops/mops-linebot-go/internal/stockdir"
	"github.com/twmops/mops-linebot-go/internal/stringutil"
)

// Module constants.
const (
	ModuleName = "stockinfo"
	senderName = "股票小幫手"
)

var (
	validKeywords = []string{
		"股票", "代號", "股號", "公司", "stock",
	}
	keywordRegex = bot.BuildKeywordRegex(validKeywords)
)

// Handler resolves codes to names and names to codes.
type Handler struct {
	directory     *stockdir.Directory
	logger        *logger.Logger
	maxCandidates int
}

// NewHandler creates a new stock info handler.
func NewHandler(directory *stockdir.Directory, log *logger.Logger, maxCandidates int) *Handler {
	if maxCandidates <= 0 {
		maxCandidates = 10
	}
	return &Handler{
		directory:     directory,
		logger:        log,
		maxCandidates: maxCandidates,
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

// CanHandle checks if the message is a stock lookup.
func (h *Handler) CanHandle(text string) bool {
	return keywordRegex.MatchString(strings.TrimSpace(text))
}

// HandleMessage handles stock lookup messages.
func (h *Handler) HandleMessage(ctx context.Context, text string) []messaging_api.MessageInterface {
	sender := lineutil.GetSender(senderName, lineutil.IconStockInfo)
	text = strings.TrimSpace(text)

	match := bot.MatchKeyword(keywordRegex, text)
	if match == "" {
		return []messaging_api.MessageInterface{}
	}
	term := bot.ExtractSearchTerm(text, match)
	if term == "" {
		msg := lineutil.NewTextMessageWithQuickReply(
			"🔎 股票代號/名稱查詢\n\n例如：\n• 股票 2330\n• 股票 台積電\n• 股票 航運（模糊搜尋）",
			sender,
			lineutil.QuickReplyItem{Action: lineutil.NewMessageAction("股票 2330", "股票 2330")},
		)
		return []messaging_api.MessageInterface{msg}
	}

	if stringutil.IsNumeric(term) {
		return h.handleCodeLookup(ctx, term, sender)
	}
	return h.handleNameLookup(ctx, term, sender)
}

// HandlePostback handles candidate selection postbacks.
func (h *Handler) HandlePostback(ctx context.Context, data string) []messaging_api.MessageInterface {
	parts := strings.Split(data, bot.PostbackSplitChar)
	if parts[0] == "code" && len(parts) == 2 {
		sender := lineutil.GetSender(senderName, lineutil.IconStockInfo)
		return h.handleCodeLookup(ctx, parts[1], sender)
	}
	return []messaging_api.MessageInterface{}
}

func (h *Handler) handleCodeLookup(ctx context.Context, code string, sender *messaging_api.Sender) []messaging_api.MessageInterface {
	name, err := h.directory.Name(ctx, code)
	if err != nil {
		if errsx.IsNotFound(err) {
			return []messaging_api.MessageInterface{
				lineutil.NewTextMessageWithSender(fmt.Sprintf("找不到代號 %s 的公司", code), sender),
			}
		}
		h.logger.WithModule(ModuleName).WithError(err).Errorf("Code lookup failed")
		return []messaging_api.MessageInterface{lineutil.ErrorMessageWithSender(sender)}
	}

	msg := lineutil.NewTextMessageWithQuickReply(
		fmt.Sprintf("🔎 %s %s", code, name),
		sender,
		lineutil.QuickReplyItem{Action: lineutil.NewMessageAction("📢 今日公告", "今日 "+code)},
		lineutil.QuickReplyItem{Action: lineutil.NewMessageAction("👀 加入關注", "關注 "+code)},
	)
	return []messaging_api.MessageInterface{msg}
}

func (h *Handler) handleNameLookup(ctx context.Context, term string, sender *messaging_api.Sender) []messaging_api.MessageInterface {
	// Exact name first.
	if code, err := h.directory.Code(term); err == nil {
		return h.handleCodeLookup(ctx, code, sender)
	}

	candidates := h.directory.Search(term, h.maxCandidates)
	if len(candidates) == 0 {
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithSender(
				fmt.Sprintf("找不到「%s」相關的公司\n\n請確認名稱或改用代號查詢", term), sender),
		}
	}
	if len(candidates) == 1 {
		return h.handleCodeLookup(ctx, candidates[0].Code, sender)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔎 「%s」找到 %d 筆：\n", term, len(candidates))
	items := make([]lineutil.QuickReplyItem, 0, len(candidates))
	for _, c := range candidates {
		fmt.Fprintf(&b, "\n• %s %s", c.Code, c.DisplayName())
		items = append(items, lineutil.QuickReplyItem{
			Action: lineutil.NewPostbackAction(
				lineutil.TruncateRunes(c.Code+" "+c.DisplayName(), lineutil.MaxQuickReplyLabel),
				bot.BuildPostback(ModuleName, "code", c.Code),
			),
		})
	}

	msg := lineutil.NewTextMessageWithQuickReply(b.String(), sender, items...)
	return []messaging_api.MessageInterface{msg}
}
