package mops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	errsx "github.com/twmops/mops-linebot-go/internal/errors"
	"github.com/twmops/mops-linebot-go/internal/scraper"
)

const (
	ezsearchQueryURL = "https://mopsov.twse.com.tw/mops/web/ezsearch_query"
	ezsearchReferer  = "https://mopsov.twse.com.tw/mops/web/ezsearch"
)

// Market selectors accepted by ezsearch.
const (
	MarketListed   = "sii"  // 上市
	MarketOTC      = "otc"  // 上櫃
	MarketEmerging = "rotc" // 興櫃
	MarketPublic   = "pub"  // 公開發行
)

// NormalizeMarket maps user input (code or Chinese label) to an
// ezsearch TYPEK value. Unrecognized input defaults to listed companies.
func NormalizeMarket(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case MarketListed, "上市":
		return MarketListed
	case MarketOTC, "上櫃":
		return MarketOTC
	case MarketEmerging, "興櫃":
		return MarketEmerging
	case MarketPublic, "公開發行":
		return MarketPublic
	default:
		return MarketListed
	}
}

// Query carries the filter parameters of one historical search.
type Query struct {
	Start    time.Time
	End      time.Time
	Subject  string // free-text keyword, also re-checked post-merge
	Market   string // TYPEK selector, see NormalizeMarket
	StockID  string // company code, empty = all companies
	ItemCode string // announcement item code, empty = all items
}

// fetcher performs one untruncated-or-capped query for one date window.
// The engine treats it as its only source of truth; tests substitute it.
type fetcher interface {
	fetchWindow(ctx context.Context, q Query, start, end time.Time) ([]Announcement, error)
}

// EzSearchClient is the production fetcher for the ezsearch endpoint.
type EzSearchClient struct {
	client   *scraper.Client
	queryURL string
	referer  string
}

// NewEzSearchClient wraps the shared scraper client.
func NewEzSearchClient(client *scraper.Client) *EzSearchClient {
	return &EzSearchClient{
		client:   client,
		queryURL: ezsearchQueryURL,
		referer:  ezsearchReferer,
	}
}

var _ fetcher = (*EzSearchClient)(nil)

// ezsearchPayload is the JSON envelope of a query response.
type ezsearchPayload struct {
	Data []rawRecord `json:"data"`
}

// fetchWindow performs exactly one POST covering [start, end] and
// translates the rows. Any transport or payload failure is returned as
// a RetrievalError tagged with the window; no retry beyond the shared
// client's transient-status policy.
func (c *EzSearchClient) fetchWindow(ctx context.Context, q Query, start, end time.Time) ([]Announcement, error) {
	form := url.Values{
		"step":      {"00"},
		"RADIO_CM":  {"1"},
		"TYPEK":     {NormalizeMarket(q.Market)},
		"CO_MARKET": {""},
		"CO_ID":     {q.StockID},
		"PRO_ITEM":  {q.ItemCode},
		"SUBJECT":   {q.Subject},
		"SDATE":     {FormatROCDate(start)},
		"EDATE":     {FormatROCDate(end)},
		"lang":      {"TW"},
		"AN":        {""},
	}

	body, err := c.client.PostForm(ctx, c.queryURL, form, c.referer)
	if err != nil {
		return nil, errsx.NewWindowRetrievalError(c.queryURL, start, end, err)
	}

	rows, err := parseEzSearchResponse(body)
	if err != nil {
		return nil, errsx.NewWindowRetrievalError(c.queryURL, start, end, err)
	}

	records := make([]Announcement, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].canonical())
	}
	return records, nil
}

// parseEzSearchResponse extracts the JSON object from a response that
// may be prefixed with a UTF-8 BOM or whitespace junk. A body with no
// JSON object at all means "no data", not an error.
func parseEzSearchResponse(body []byte) ([]rawRecord, error) {
	cleaned := bytes.TrimLeft(body, "\ufeff \n\r\t")
	i := bytes.IndexByte(cleaned, '{')
	if i < 0 {
		return nil, nil
	}

	var payload ezsearchPayload
	if err := json.Unmarshal(cleaned[i:], &payload); err != nil {
		return nil, fmt.Errorf("malformed ezsearch payload: %w", err)
	}
	return payload.Data, nil
}
