// Package watchlist implements the per-chat stock watchlist module.
// Watched companies feed the periodic disclosure push.
package watchlist

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/twmops/mops-linebot-go/internal/bot"
	"github.com/twmops/mops-linebot-go/internal/ctxutil"
	errsx "github.com/twmops/mops-linebot-go/internal/errors"
	"github.com/twmops/mops-linebot-go/internal/lineutil"
	"github.com/twmops/mops-linebot-go/internal/logger"
	"github.com/twmops/mops-linebot-go/internal/stockdir"
	"github.com/twmops/mops-linebot-go/internal/storage"
	"github.com/twmops/mops-linebot-go/internal/stringutil"
)

// Module constants.
const (
	ModuleName = "watchlist"
	senderName = "關注小幫手"
)

var (
	validAddKeywords = []string{
		"關注", "追蹤", "watch",
	}
	validRemoveKeywords = []string{
		"退追", "取消關注", "取消追蹤", "unwatch",
	}
	validClearKeywords = []string{
		"清空關注", "清空追蹤",
	}
	listText = "關注清單"

	addRegex    = bot.BuildKeywordRegex(validAddKeywords)
	removeRegex = bot.BuildKeywordRegex(validRemoveKeywords)
	clearRegex  = bot.BuildKeywordRegex(validClearKeywords)
)

// Handler manages the watchlist commands.
type Handler struct {
	repo       storage.WatchlistRepository
	directory  *stockdir.Directory
	logger     *logger.Logger
	maxWatched int
}

// NewHandler creates a new watchlist handler.
func NewHandler(repo storage.WatchlistRepository, directory *stockdir.Directory, log *logger.Logger, maxWatched int) *Handler {
	if maxWatched <= 0 {
		maxWatched = 50
	}
	return &Handler{
		repo:       repo,
		directory:  directory,
		logger:     log,
		maxWatched: maxWatched,
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

// CanHandle checks if the message is a watchlist command.
func (h *Handler) CanHandle(text string) bool {
	text = strings.TrimSpace(text)
	return text == listText ||
		addRegex.MatchString(text) ||
		removeRegex.MatchString(text) ||
		clearRegex.MatchString(text)
}

// HandleMessage handles watchlist text commands.
func (h *Handler) HandleMessage(ctx context.Context, text string) []messaging_api.MessageInterface {
	text = strings.TrimSpace(text)
	sender := lineutil.GetSender(senderName, lineutil.IconWatchlist)

	ownerID := ctxutil.GetOwnerID(ctx)
	if ownerID == "" {
		h.logger.WithModule(ModuleName).Warnf("Missing owner ID in context")
		return []messaging_api.MessageInterface{lineutil.ErrorMessageWithSender(sender)}
	}

	if text == listText {
		return h.handleList(ctx, ownerID, sender)
	}
	if match := bot.MatchKeyword(clearRegex, text); match != "" {
		return h.handleClearConfirm(sender)
	}
	if match := bot.MatchKeyword(removeRegex, text); match != "" {
		target := bot.ExtractSearchTerm(text, match)
		return h.handleRemove(ctx, ownerID, target, sender)
	}
	if match := bot.MatchKeyword(addRegex, text); match != "" {
		target := bot.ExtractSearchTerm(text, match)
		if target == "" || target == "清單" {
			return h.handleList(ctx, ownerID, sender)
		}
		return h.handleAdd(ctx, ownerID, target, sender)
	}

	return []messaging_api.MessageInterface{}
}

// HandlePostback handles watchlist postback actions.
func (h *Handler) HandlePostback(ctx context.Context, data string) []messaging_api.MessageInterface {
	sender := lineutil.GetSender(senderName, lineutil.IconWatchlist)
	ownerID := ctxutil.GetOwnerID(ctx)
	if ownerID == "" {
		return []messaging_api.MessageInterface{lineutil.ErrorMessageWithSender(sender)}
	}

	parts := strings.Split(data, bot.PostbackSplitChar)
	switch parts[0] {
	case "del":
		if len(parts) != 2 {
			return []messaging_api.MessageInterface{}
		}
		return h.handleRemove(ctx, ownerID, parts[1], sender)
	case "clear":
		return h.handleClear(ctx, ownerID, sender)
	case "list":
		return h.handleList(ctx, ownerID, sender)
	}
	return []messaging_api.MessageInterface{}
}

// splitTargets splits an add/remove argument into individual targets.
// Multiple companies may be separated by spaces, commas or enumeration
// marks in one command.
func splitTargets(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == '，' || r == '、' || r == ';' || r == '；'
	})
}

func (h *Handler) handleAdd(ctx context.Context, ownerID, target string, sender *messaging_api.Sender) []messaging_api.MessageInterface {
	if targets := splitTargets(target); len(targets) > 1 {
		return h.handleAddMany(ctx, ownerID, targets, sender)
	} else if len(targets) == 1 {
		target = targets[0]
	}

	code, name, msgs := h.resolveTarget(ctx, target, sender)
	if msgs != nil {
		return msgs
	}

	count, err := h.repo.Count(ctx, ownerID)
	if err != nil {
		h.logger.WithModule(ModuleName).WithError(err).Errorf("Count failed")
		return []messaging_api.MessageInterface{lineutil.ErrorMessageWithSender(sender)}
	}
	if count >= h.maxWatched {
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithSender(
				fmt.Sprintf("⚠️ 關注清單已滿（上限 %d 檔）\n\n請先移除部分股票再試。", h.maxWatched),
				sender,
			),
		}
	}

	if err := h.repo.Add(ctx, ownerID, code, name); err != nil {
		h.logger.WithModule(ModuleName).WithError(err).Errorf("Add failed")
		return []messaging_api.MessageInterface{lineutil.ErrorMessageWithSender(sender)}
	}

	display := code
	if name != "" {
		display = fmt.Sprintf("%s %s", code, name)
	}
	msg := lineutil.NewTextMessageWithQuickReply(
		fmt.Sprintf("✅ 已關注 %s\n\n有新的重大訊息時會推播通知", display),
		sender,
		lineutil.QuickReplyItem{Action: lineutil.NewPostbackAction("📋 關注清單", bot.BuildPostback(ModuleName, "list"))},
		lineutil.QuickReplyItem{Action: lineutil.NewMessageAction("📢 查今日公告", "今日 "+code)},
	)
	return []messaging_api.MessageInterface{msg}
}

// handleAddMany adds several companies in one command and replies with
// a per-target summary instead of the single-add confirmation.
func (h *Handler) handleAddMany(ctx context.Context, ownerID string, targets []string, sender *messaging_api.Sender) []messaging_api.MessageInterface {
	count, err := h.repo.Count(ctx, ownerID)
	if err != nil {
		h.logger.WithModule(ModuleName).WithError(err).Errorf("Count failed")
		return []messaging_api.MessageInterface{lineutil.ErrorMessageWithSender(sender)}
	}

	var b strings.Builder
	b.WriteString("👀 批次關注結果")
	for _, tgt := range targets {
		code, name, msgs := h.resolveTarget(ctx, tgt, sender)
		if msgs != nil {
			fmt.Fprintf(&b, "\n⚠️ 找不到「%s」", tgt)
			continue
		}
		if count >= h.maxWatched {
			fmt.Fprintf(&b, "\n⚠️ %s 未加入，清單已滿（上限 %d 檔）", code, h.maxWatched)
			continue
		}
		if err := h.repo.Add(ctx, ownerID, code, name); err != nil {
			h.logger.WithModule(ModuleName).WithError(err).Errorf("Add failed")
			fmt.Fprintf(&b, "\n⚠️ %s 加入失敗", code)
			continue
		}
		count++
		if name != "" {
			fmt.Fprintf(&b, "\n✅ 已關注 %s %s", code, name)
		} else {
			fmt.Fprintf(&b, "\n✅ 已關注 %s", code)
		}
	}

	msg := lineutil.NewTextMessageWithQuickReply(
		b.String(),
		sender,
		lineutil.QuickReplyItem{Action: lineutil.NewPostbackAction("📋 關注清單", bot.BuildPostback(ModuleName, "list"))},
	)
	return []messaging_api.MessageInterface{msg}
}

func (h *Handler) handleRemove(ctx context.Context, ownerID, target string, sender *messaging_api.Sender) []messaging_api.MessageInterface {
	if target == "" {
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithSender("請指定要取消關注的代號\n例如：退追 2330", sender),
		}
	}

	if targets := splitTargets(target); len(targets) > 1 {
		return h.handleRemoveMany(ctx, ownerID, targets, sender)
	} else if len(targets) == 1 {
		target = targets[0]
	}

	code := target
	if !stringutil.IsNumeric(target) && h.directory != nil {
		if resolved, err := h.directory.Code(target); err == nil {
			code = resolved
		}
	}

	removed, err := h.repo.Remove(ctx, ownerID, code)
	if err != nil {
		h.logger.WithModule(ModuleName).WithError(err).Errorf("Remove failed")
		return []messaging_api.MessageInterface{lineutil.ErrorMessageWithSender(sender)}
	}
	if !removed {
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithSender(fmt.Sprintf("%s 不在關注清單中", code), sender),
		}
	}
	return []messaging_api.MessageInterface{
		lineutil.NewTextMessageWithSender(fmt.Sprintf("🗑️ 已取消關注 %s", code), sender),
	}
}

// handleRemoveMany removes several companies in one command.
func (h *Handler) handleRemoveMany(ctx context.Context, ownerID string, targets []string, sender *messaging_api.Sender) []messaging_api.MessageInterface {
	var b strings.Builder
	b.WriteString("👀 批次退追結果")
	for _, tgt := range targets {
		code := tgt
		if !stringutil.IsNumeric(tgt) && h.directory != nil {
			if resolved, err := h.directory.Code(tgt); err == nil {
				code = resolved
			}
		}

		removed, err := h.repo.Remove(ctx, ownerID, code)
		if err != nil {
			h.logger.WithModule(ModuleName).WithError(err).Errorf("Remove failed")
			fmt.Fprintf(&b, "\n⚠️ %s 移除失敗", code)
			continue
		}
		if !removed {
			fmt.Fprintf(&b, "\n⚠️ %s 不在關注清單中", code)
			continue
		}
		fmt.Fprintf(&b, "\n🗑️ 已取消關注 %s", code)
	}

	msg := lineutil.NewTextMessageWithQuickReply(
		b.String(),
		sender,
		lineutil.QuickReplyItem{Action: lineutil.NewPostbackAction("📋 關注清單", bot.BuildPostback(ModuleName, "list"))},
	)
	return []messaging_api.MessageInterface{msg}
}

func (h *Handler) handleList(ctx context.Context, ownerID string, sender *messaging_api.Sender) []messaging_api.MessageInterface {
	entries, err := h.repo.List(ctx, ownerID)
	if err != nil {
		h.logger.WithModule(ModuleName).WithError(err).Errorf("List failed")
		return []messaging_api.MessageInterface{lineutil.ErrorMessageWithSender(sender)}
	}

	if len(entries) == 0 {
		msg := lineutil.NewTextMessageWithQuickReply(
			"👀 關注清單是空的\n\n輸入「關注 2330」開始追蹤公司公告",
			sender,
			lineutil.QuickReplyItem{Action: lineutil.NewMessageAction("關注台積電", "關注 2330")},
		)
		return []messaging_api.MessageInterface{msg}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👀 關注清單（%d/%d）\n", len(entries), h.maxWatched)
	for _, e := range entries {
		b.WriteString("\n• ")
		b.WriteString(e.StockCode)
		if e.StockName != "" {
			b.WriteString(" ")
			b.WriteString(e.StockName)
		}
	}

	msg := lineutil.NewTextMessageWithQuickReply(
		b.String(),
		sender,
		lineutil.QuickReplyItem{Action: lineutil.NewPostbackAction("🗑️ 清空清單", bot.BuildPostback(ModuleName, "clear"))},
	)
	return []messaging_api.MessageInterface{msg}
}

// handleClearConfirm asks before wiping the list; the destructive step
// only runs from the confirm postback.
func (h *Handler) handleClearConfirm(sender *messaging_api.Sender) []messaging_api.MessageInterface {
	msg := lineutil.NewConfirmTemplate(
		"確認清空關注清單",
		"確定要清空整個關注清單嗎？",
		lineutil.NewPostbackAction("確定", bot.BuildPostback(ModuleName, "clear")),
		lineutil.NewMessageAction("取消", listText),
	)
	return []messaging_api.MessageInterface{lineutil.SetSender(msg, sender)}
}

func (h *Handler) handleClear(ctx context.Context, ownerID string, sender *messaging_api.Sender) []messaging_api.MessageInterface {
	n, err := h.repo.Clear(ctx, ownerID)
	if err != nil {
		h.logger.WithModule(ModuleName).WithError(err).Errorf("Clear failed")
		return []messaging_api.MessageInterface{lineutil.ErrorMessageWithSender(sender)}
	}
	return []messaging_api.MessageInterface{
		lineutil.NewTextMessageWithSender(fmt.Sprintf("🗑️ 已清空關注清單（移除 %d 檔）", n), sender),
	}
}

// resolveTarget turns user input into a (code, name) pair. Returns
// reply messages instead when the target cannot be resolved.
func (h *Handler) resolveTarget(ctx context.Context, target string, sender *messaging_api.Sender) (string, string, []messaging_api.MessageInterface) {
	if stringutil.IsNumeric(target) && len(target) >= 4 && len(target) <= 6 {
		name := ""
		if h.directory != nil {
			if resolved, err := h.directory.Name(ctx, target); err == nil {
				name = resolved
			} else if errsx.IsNotFound(err) {
				return "", "", []messaging_api.MessageInterface{
					lineutil.NewTextMessageWithSender(
						fmt.Sprintf("找不到代號 %s 的公司，請確認後再試", target), sender),
				}
			}
			// Lookup errors other than not-found still allow the add;
			// the directory may just be stale.
		}
		return target, name, nil
	}

	if h.directory == nil {
		return "", "", []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithSender("請輸入股票代號，例如：關注 2330", sender),
		}
	}
	if code, err := h.directory.Code(target); err == nil {
		name := target
		if resolved, nameErr := h.directory.Name(ctx, code); nameErr == nil {
			name = resolved
		}
		return code, name, nil
	}

	return "", "", []messaging_api.MessageInterface{
		lineutil.NewTextMessageWithSender(
			fmt.Sprintf("找不到「%s」，請輸入股票代號或完整公司名稱\n也可以用「股票 %s」搜尋", target, target), sender),
	}
}
