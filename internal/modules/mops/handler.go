// Package mops implements the announcement query module for the LINE
// bot. It handles same-day disclosure lookups and full historical
// range queries against the 公開資訊觀測站.
package mops

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/twmops/mops-linebot-go/internal/bot"
	"github.com/twmops/mops-linebot-go/internal/ctxutil"
	errsx "github.com/twmops/mops-linebot-go/internal/errors"
	"github.com/twmops/mops-linebot-go/internal/lineutil"
	"github.com/twmops/mops-linebot-go/internal/logger"
	mopscraper "github.com/twmops/mops-linebot-go/internal/scraper/mops"
	"github.com/twmops/mops-linebot-go/internal/stockdir"
	"github.com/twmops/mops-linebot-go/internal/storage"
	"github.com/twmops/mops-linebot-go/internal/stringutil"
)

// Module constants.
const (
	ModuleName = "mops"
	senderName = "公告小幫手"

	// Watchlist-driven crawl commands, matched verbatim.
	crawlTodayCommand     = "爬取今日數據"
	crawlYesterdayCommand = "爬取昨日數據"
)

// Valid keywords for announcement queries.
var (
	validTodayKeywords = []string{
		"今日", "今日公告", "今日重訊", "today",
	}
	validHistoryKeywords = []string{
		"公告", "歷史", "歷史公告", "重訊", "history",
	}
	validFastKeywords = []string{
		"快查", "fast",
	}

	todayRegex   = bot.BuildKeywordRegex(validTodayKeywords)
	historyRegex = bot.BuildKeywordRegex(validHistoryKeywords)
	fastRegex    = bot.BuildKeywordRegex(validFastKeywords)
)

// Handler handles announcement queries.
type Handler struct {
	engine       *mopscraper.HistoryEngine
	today        *mopscraper.TodayClient
	directory    *stockdir.Directory
	watchlists   storage.WatchlistRepository // nil disables crawl commands
	logger       *logger.Logger
	maxRangeDays int
	now          func() time.Time
}

// NewHandler creates a new announcement handler.
func NewHandler(
	engine *mopscraper.HistoryEngine,
	today *mopscraper.TodayClient,
	directory *stockdir.Directory,
	watchlists storage.WatchlistRepository,
	log *logger.Logger,
	maxRangeDays int,
) *Handler {
	if maxRangeDays <= 0 {
		maxRangeDays = 90
	}
	return &Handler{
		engine:       engine,
		today:        today,
		directory:    directory,
		watchlists:   watchlists,
		logger:       log,
		maxRangeDays: maxRangeDays,
		now:          time.Now,
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

// CanHandle checks if the message is an announcement query.
func (h *Handler) CanHandle(text string) bool {
	text = strings.TrimSpace(text)
	return text == crawlTodayCommand ||
		text == crawlYesterdayCommand ||
		todayRegex.MatchString(text) ||
		historyRegex.MatchString(text) ||
		fastRegex.MatchString(text)
}

// HandleMessage handles text messages for the announcement module.
func (h *Handler) HandleMessage(ctx context.Context, text string) []messaging_api.MessageInterface {
	log := h.logger.WithModule(ModuleName)
	text = strings.TrimSpace(text)

	switch text {
	case crawlTodayCommand:
		return h.handleCrawlToday(ctx)
	case crawlYesterdayCommand:
		return h.handleCrawlYesterday(ctx)
	}

	if match := bot.MatchKeyword(todayRegex, text); match != "" {
		keyword := bot.ExtractSearchTerm(text, match)
		log.Debugf("Today query: %q", keyword)
		return h.handleTodayQuery(ctx, keyword)
	}

	if match := bot.MatchKeyword(fastRegex, text); match != "" {
		args := bot.ExtractSearchTerm(text, match)
		log.Debugf("Fast range query: %q", args)
		return h.handleRangeQuery(ctx, args, mopscraper.ModeFast)
	}

	if match := bot.MatchKeyword(historyRegex, text); match != "" {
		args := bot.ExtractSearchTerm(text, match)
		log.Debugf("Range query: %q", args)
		return h.handleRangeQuery(ctx, args, mopscraper.ModeFull)
	}

	return []messaging_api.MessageInterface{}
}

// HandlePostback handles postback events for the announcement module.
func (h *Handler) HandlePostback(ctx context.Context, data string) []messaging_api.MessageInterface {
	parts := strings.Split(data, bot.PostbackSplitChar)
	switch parts[0] {
	case "today":
		keyword := ""
		if len(parts) > 1 {
			keyword = parts[1]
		}
		return h.handleTodayQuery(ctx, keyword)
	case "range":
		if len(parts) != 4 {
			return []messaging_api.MessageInterface{}
		}
		args := strings.TrimSpace(parts[1] + " " + parts[2] + "~" + parts[3])
		return h.handleRangeQuery(ctx, args, mopscraper.ModeFull)
	}
	return []messaging_api.MessageInterface{}
}

// handleTodayQuery fetches same-day announcements, optionally filtered
// by a keyword matched against company code, name and subject.
func (h *Handler) handleTodayQuery(ctx context.Context, keyword string) []messaging_api.MessageInterface {
	sender := lineutil.GetSender(senderName, lineutil.IconAnnouncement)

	// A company name resolves to its code so the filter also catches
	// rows that only carry the code.
	if keyword != "" && !stringutil.IsNumeric(keyword) && h.directory != nil {
		if code, err := h.directory.Code(keyword); err == nil {
			keyword = code
		}
	}

	records, err := h.today.FetchToday(ctx, keyword)
	if err != nil {
		h.logger.WithModule(ModuleName).WithError(err).Errorf("Today query failed")
		return []messaging_api.MessageInterface{
			lineutil.ErrorMessageWithDetailAndSender("今日公告查詢失敗，請稍後再試。", sender),
		}
	}

	header := "📢 今日重大訊息"
	if keyword != "" {
		header += fmt.Sprintf("（%s）", keyword)
	}
	header += fmt.Sprintf("\n共 %d 筆", len(records))

	announcements := make([]mopscraper.Announcement, len(records))
	for i, r := range records {
		announcements[i] = mopscraper.Announcement{
			StockCode:   r.StockCode,
			CompanyName: r.CompanyName,
			Date:        r.DateSay,
			Subject:     r.Subject,
		}
	}

	msgs := lineutil.BuildAnnouncementMessages(header, announcements, sender)
	lineutil.AddQuickReplyToMessages(msgs,
		lineutil.QuickReplyItem{Action: lineutil.NewPostbackAction("🔄 重新整理", bot.BuildPostback(ModuleName, "today", keyword))},
		lineutil.QuickReplyItem{Action: lineutil.NewMessageAction("📖 使用說明", "使用說明")},
	)
	return msgs
}

// handleCrawlToday fetches today's announcements for every company on
// the caller's watchlist. One feed fetch covers all watched codes.
func (h *Handler) handleCrawlToday(ctx context.Context) []messaging_api.MessageInterface {
	sender := lineutil.GetSender(senderName, lineutil.IconAnnouncement)

	entries, guide := h.watchedEntries(ctx, sender)
	if guide != nil {
		return guide
	}

	records, err := h.today.FetchToday(ctx, "")
	if err != nil {
		h.logger.WithModule(ModuleName).WithError(err).Errorf("Watchlist today crawl failed")
		return []messaging_api.MessageInterface{
			lineutil.ErrorMessageWithDetailAndSender("今日公告查詢失敗，請稍後再試。", sender),
		}
	}

	watched := make(map[string]bool, len(entries))
	for _, e := range entries {
		watched[e.StockCode] = true
	}

	var announcements []mopscraper.Announcement
	for _, r := range records {
		if !watched[r.StockCode] {
			continue
		}
		announcements = append(announcements, mopscraper.Announcement{
			StockCode:   r.StockCode,
			CompanyName: r.CompanyName,
			Date:        r.DateSay,
			Subject:     r.Subject,
		})
	}

	header := fmt.Sprintf("📢 關注公司今日公告\n關注 %d 家，共 %d 筆", len(entries), len(announcements))
	msgs := lineutil.BuildAnnouncementMessages(header, announcements, sender)
	lineutil.AddQuickReplyToMessages(msgs,
		lineutil.QuickReplyItem{Action: lineutil.NewMessageAction("🔄 重新整理", crawlTodayCommand)},
		lineutil.QuickReplyItem{Action: lineutil.NewMessageAction("📋 關注清單", "關注清單")},
	)
	return msgs
}

// handleCrawlYesterday runs a single-day historical query for each
// watched company and merges the results into one reply.
func (h *Handler) handleCrawlYesterday(ctx context.Context) []messaging_api.MessageInterface {
	sender := lineutil.GetSender(senderName, lineutil.IconAnnouncement)

	entries, guide := h.watchedEntries(ctx, sender)
	if guide != nil {
		return guide
	}

	yesterday := h.now().In(mopscraper.Taipei).AddDate(0, 0, -1)
	var merged []mopscraper.Announcement
	for _, e := range entries {
		query := mopscraper.Query{
			Start:   yesterday,
			End:     yesterday,
			StockID: e.StockCode,
		}
		records, err := h.engine.FetchHistory(ctx, query, mopscraper.ModeFast)
		if err != nil {
			h.logger.WithModule(ModuleName).WithError(err).
				Errorf("Watchlist yesterday crawl failed for %s", e.StockCode)
			return []messaging_api.MessageInterface{
				lineutil.ErrorMessageWithDetailAndSender("昨日公告查詢失敗，請稍後再試。", sender),
			}
		}
		merged = append(merged, records...)
	}

	header := fmt.Sprintf("📢 關注公司昨日公告（%s）\n關注 %d 家，共 %d 筆",
		mopscraper.FormatROCDate(yesterday), len(entries), len(merged))
	msgs := lineutil.BuildAnnouncementMessages(header, merged, sender)
	lineutil.AddQuickReplyToMessages(msgs,
		lineutil.QuickReplyItem{Action: lineutil.NewMessageAction("🔄 重新整理", crawlYesterdayCommand)},
		lineutil.QuickReplyItem{Action: lineutil.NewMessageAction("📋 關注清單", "關注清單")},
	)
	return msgs
}

// watchedEntries loads the caller's watchlist or returns guidance
// messages when the crawl cannot proceed.
func (h *Handler) watchedEntries(ctx context.Context, sender *messaging_api.Sender) ([]storage.WatchEntry, []messaging_api.MessageInterface) {
	if h.watchlists == nil {
		return nil, []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithSender("⚠️ 此功能未啟用。", sender),
		}
	}

	ownerID := ctxutil.GetOwnerID(ctx)
	if ownerID == "" {
		h.logger.WithModule(ModuleName).Warnf("Missing owner ID in context")
		return nil, []messaging_api.MessageInterface{lineutil.ErrorMessageWithSender(sender)}
	}

	entries, err := h.watchlists.List(ctx, ownerID)
	if err != nil {
		h.logger.WithModule(ModuleName).WithError(err).Errorf("Failed to load watchlist")
		return nil, []messaging_api.MessageInterface{lineutil.ErrorMessageWithSender(sender)}
	}
	if len(entries) == 0 {
		msg := lineutil.NewTextMessageWithSender(
			"📋 關注清單是空的\n\n先加入要追蹤的公司，例如：\n• 關注 台積電\n• 關注 2330",
			sender,
		)
		msg.QuickReply = lineutil.NewQuickReply([]lineutil.QuickReplyItem{
			{Action: lineutil.NewMessageAction("➕ 關注台積電", "關注 2330")},
			{Action: lineutil.NewMessageAction("📖 使用說明", "使用說明")},
		})
		return nil, []messaging_api.MessageInterface{msg}
	}
	return entries, nil
}

// handleRangeQuery runs a historical range query. Argument grammar:
//
//	[代號或關鍵字] 開始日期~結束日期
//
// Dates are Minguo form. A 4-5 digit numeric target is a company code,
// anything else filters by subject keyword.
func (h *Handler) handleRangeQuery(ctx context.Context, args string, mode mopscraper.Mode) []messaging_api.MessageInterface {
	sender := lineutil.GetSender(senderName, lineutil.IconAnnouncement)

	query, guide := h.parseRangeArgs(args)
	if guide != nil {
		return guide
	}

	span := int(query.End.Sub(query.Start).Hours()/24) + 1
	if span > h.maxRangeDays {
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithSender(
				fmt.Sprintf("⚠️ 查詢區間過長\n\n單次最多查詢 %d 天，您查詢了 %d 天。\n請縮小日期範圍後再試。", h.maxRangeDays, span),
				sender,
			),
		}
	}

	records, err := h.engine.FetchHistory(ctx, *query, mode)
	if err != nil {
		log := h.logger.WithModule(ModuleName).WithError(err)
		if errsx.IsValidation(err) {
			log.Warnf("Range query rejected")
			return []messaging_api.MessageInterface{
				lineutil.ErrorMessageWithDetailAndSender("查詢條件有誤："+err.Error(), sender),
			}
		}
		log.Errorf("Range query failed")
		return []messaging_api.MessageInterface{
			lineutil.ErrorMessageWithDetailAndSender("公告查詢失敗，請稍後再試。", sender),
		}
	}

	target := query.StockID
	if target == "" {
		target = query.Subject
	}
	if target == "" {
		target = "全部"
	}
	header := fmt.Sprintf("📢 公告查詢（%s）\n%s ~ %s\n共 %d 筆",
		target,
		mopscraper.FormatROCDate(query.Start),
		mopscraper.FormatROCDate(query.End),
		len(records))
	if mode == mopscraper.ModeFast {
		header += "（快查，最多 1000 筆）"
	}

	return lineutil.BuildAnnouncementMessages(header, records, sender)
}

// parseRangeArgs parses "[target] start~end" into a Query, or returns
// guidance messages when the input is incomplete.
func (h *Handler) parseRangeArgs(args string) (*mopscraper.Query, []messaging_api.MessageInterface) {
	sender := lineutil.GetSender(senderName, lineutil.IconAnnouncement)
	fields := strings.Fields(args)

	var target, dateRange string
	switch len(fields) {
	case 1:
		dateRange = fields[0]
	case 2:
		target = fields[0]
		dateRange = fields[1]
	default:
		return nil, h.rangeUsageMessages(sender)
	}

	startStr, endStr, ok := strings.Cut(dateRange, "~")
	if !ok {
		return nil, h.rangeUsageMessages(sender)
	}

	start, err := mopscraper.ParseROCDate(strings.TrimSpace(startStr))
	if err != nil {
		return nil, []messaging_api.MessageInterface{
			lineutil.ErrorMessageWithDetailAndSender(
				fmt.Sprintf("開始日期「%s」格式有誤，請用民國年格式，如 114/08/01。", strings.TrimSpace(startStr)), sender),
		}
	}
	end, err := mopscraper.ParseROCDate(strings.TrimSpace(endStr))
	if err != nil {
		return nil, []messaging_api.MessageInterface{
			lineutil.ErrorMessageWithDetailAndSender(
				fmt.Sprintf("結束日期「%s」格式有誤，請用民國年格式，如 114/08/31。", strings.TrimSpace(endStr)), sender),
		}
	}

	query := &mopscraper.Query{Start: start, End: end}
	switch {
	case target == "":
	case stringutil.IsNumeric(target) && len(target) >= 4 && len(target) <= 6:
		query.StockID = target
	default:
		// Try resolving a company name first, fall back to subject keyword.
		if h.directory != nil {
			if code, err := h.directory.Code(target); err == nil {
				query.StockID = code
				break
			}
		}
		query.Subject = target
	}

	return query, nil
}

func (h *Handler) rangeUsageMessages(sender *messaging_api.Sender) []messaging_api.MessageInterface {
	now := time.Now()
	endExample := mopscraper.FormatROCDate(now)
	startExample := mopscraper.FormatROCDate(now.AddDate(0, -1, 0))
	example := fmt.Sprintf("公告 2330 %s~%s", startExample, endExample)

	msg := lineutil.NewTextMessageWithSender(
		"📢 歷史公告查詢\n\n格式：公告 [代號或關鍵字] 開始~結束\n\n例如：\n• "+example+
			"\n• 公告 "+startExample+"~"+endExample+
			"\n\n💡 前面改用「快查」可快速查詢\n（單次抓取，最多 1000 筆）",
		sender,
	)
	msg.QuickReply = lineutil.NewQuickReply([]lineutil.QuickReplyItem{
		{Action: lineutil.NewMessageAction("📋 範例查詢", example)},
		{Action: lineutil.NewMessageAction("📖 使用說明", "使用說明")},
	})
	return []messaging_api.MessageInterface{msg}
}
