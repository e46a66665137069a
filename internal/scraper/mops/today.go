package mops

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	errsx "github.com/twmops/mops-linebot-go/internal/errors"
	"github.com/twmops/mops-linebot-go/internal/scraper"
)

const todayNewsURL = "https://openapi.twse.com.tw/v1/opendata/t187ap04_L"

// TodayAnnouncement is one row of the TWSE same-day disclosure feed.
type TodayAnnouncement struct {
	StockCode   string
	CompanyName string
	DatePub     string // 出表日期
	DateSay     string // 發言日期
	Subject     string
}

// TodayClient reads the TWSE open-data feed of same-day announcements.
// Unlike ezsearch it is a plain JSON GET with no truncation cap.
type TodayClient struct {
	client *scraper.Client
	apiURL string
	now    func() time.Time
}

// NewTodayClient wraps the shared scraper client.
func NewTodayClient(client *scraper.Client) *TodayClient {
	return &TodayClient{client: client, apiURL: todayNewsURL, now: time.Now}
}

// FetchToday returns today's announcements (Taipei calendar day),
// optionally filtered by a keyword over subject and company name.
// The feed keeps rows from recent days, so rows are matched against
// every date representation the feed has been seen to use.
func (c *TodayClient) FetchToday(ctx context.Context, keyword string) ([]TodayAnnouncement, error) {
	body, err := c.client.Get(ctx, c.apiURL)
	if err != nil {
		return nil, errsx.NewRetrievalError(c.apiURL, 0, err)
	}

	var rows []map[string]string
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, errsx.NewRetrievalError(c.apiURL, 0, fmt.Errorf("malformed open-data payload: %w", err))
	}

	tokens := todayTokens(c.now().In(Taipei))

	var out []TodayAnnouncement
	for _, row := range rows {
		code := firstValue(row, "公司代號", "co_id", "Code")
		name := firstValue(row, "公司名稱", "name", "Name")
		subject := firstValue(row, "主旨", "主旨 ", "subject", "標題")
		if code == "" || name == "" || subject == "" {
			continue
		}

		datePub := firstValue(row, "出表日期", "公告日期", "date")
		dateSay := firstValue(row, "發言日期", "日期")
		dateAny := firstValue(row, "事實發生日", "發生日")
		if !anyDateMatches(tokens, datePub, dateSay, dateAny) {
			continue
		}

		if keyword != "" && !strings.Contains(subject, keyword) && !strings.Contains(name, keyword) {
			continue
		}

		out = append(out, TodayAnnouncement{
			StockCode:   strings.TrimSpace(code),
			CompanyName: strings.TrimSpace(name),
			DatePub:     datePub,
			DateSay:     dateSay,
			Subject:     strings.TrimSpace(subject),
		})
	}
	return out, nil
}

// todayTokens builds every date form the feed may use for the given
// day: ROC and ISO, with and without separators.
func todayTokens(now time.Time) map[string]struct{} {
	y, m, d := now.Year(), int(now.Month()), now.Day()
	tokens := map[string]struct{}{
		fmt.Sprintf("%03d/%02d/%02d", y-1911, m, d): {},
		fmt.Sprintf("%03d%02d%02d", y-1911, m, d):   {},
		fmt.Sprintf("%04d/%02d/%02d", y, m, d):      {},
		fmt.Sprintf("%04d%02d%02d", y, m, d):        {},
	}
	return tokens
}

var nonDigit = regexp.MustCompile(`\D`)

func anyDateMatches(tokens map[string]struct{}, dates ...string) bool {
	for _, d := range dates {
		if d == "" {
			continue
		}
		trimmed := strings.TrimSpace(d)
		if _, ok := tokens[trimmed]; ok {
			return true
		}
		if _, ok := tokens[nonDigit.ReplaceAllString(trimmed, "")]; ok {
			return true
		}
	}
	return false
}

func firstValue(row map[string]string, keys ...string) string {
	for _, k := range keys {
		if v, ok := row[k]; ok && v != "" {
			return v
		}
	}
	return ""
}
