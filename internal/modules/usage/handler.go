// Package usage implements the instruction module: it answers help
// requests with the command reference for every other module.
package usage

import (
	"context"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/twmops/mops-linebot-go/internal/bot"
	"github.com/twmops/mops-linebot-go/internal/lineutil"
	"github.com/twmops/mops-linebot-go/internal/logger"
)

// Module constants.
const (
	ModuleName = "usage"
	senderName = "說明小幫手"
)

var (
	usageKeywords = []string{
		"使用說明", "說明", "幫助", "指令",
		"help", "usage",
	}
	usageRegex = bot.BuildKeywordRegex(usageKeywords)
)

// Handler answers help requests.
type Handler struct {
	logger *logger.Logger
}

// NewHandler creates a new instruction handler.
func NewHandler(log *logger.Logger) *Handler {
	return &Handler{logger: log}
}

// Name returns the module name.
func (h *Handler) Name() string {
	return ModuleName
}

// PostbackPrefix returns the postback routing prefix.
func (h *Handler) PostbackPrefix() string {
	return ModuleName + ":"
}

// CanHandle returns true for help keywords.
func (h *Handler) CanHandle(text string) bool {
	return usageRegex.MatchString(strings.TrimSpace(text))
}

// HandleMessage returns the command reference.
func (h *Handler) HandleMessage(ctx context.Context, text string) []messaging_api.MessageInterface {
	h.logger.WithModule(ModuleName).Debugf("Handling help request")
	return h.instructionMessages()
}

// HandlePostback returns the command reference for any payload.
func (h *Handler) HandlePostback(ctx context.Context, data string) []messaging_api.MessageInterface {
	return h.instructionMessages()
}

func (h *Handler) instructionMessages() []messaging_api.MessageInterface {
	sender := lineutil.GetSender(senderName, lineutil.IconUsage)

	queryHelp := lineutil.NewTextMessageWithSender(
		"📢 公告查詢\n\n"+
			"• 今日\n　列出今日全部重大訊息\n"+
			"• 今日 台積電\n　過濾公司或關鍵字\n"+
			"• 公告 2330 114/07/01~114/07/31\n　完整歷史查詢（自動繞過筆數上限）\n"+
			"• 公告 合併 114/07/01~114/07/31\n　依主旨關鍵字查詢\n"+
			"• 快查 2330 114/07/01~114/07/31\n　快速查詢（單次抓取，最多 1000 筆）",
		sender,
	)

	watchHelp := lineutil.NewTextMessageWithSender(
		"👀 公司關注\n\n"+
			"• 關注 2330\n　加入關注，有新公告時推播\n"+
			"• 退追 2330\n　取消關注\n"+
			"• 關注清單\n　查看目前關注的公司\n"+
			"• 清空關注\n　移除全部關注\n"+
			"• 爬取今日數據\n　關注公司的今日公告\n"+
			"• 爬取昨日數據\n　關注公司的昨日公告",
		sender,
	)

	otherHelp := lineutil.NewTextMessageWithQuickReply(
		"🔎 其他查詢\n\n"+
			"• 股票 台積電 / 股票 2330\n　公司代號與名稱互查\n"+
			"• 詢圈 114\n　年度詢價圈購案件",
		sender,
		lineutil.QuickReplyItem{Action: lineutil.NewMessageAction("📢 今日公告", "今日")},
		lineutil.QuickReplyItem{Action: lineutil.NewMessageAction("👀 關注清單", "關注清單")},
		lineutil.QuickReplyItem{Action: lineutil.NewMessageAction("📖 詢圈查詢", "詢圈")},
	)

	return []messaging_api.MessageInterface{queryHelp, watchHelp, otherHelp}
}
