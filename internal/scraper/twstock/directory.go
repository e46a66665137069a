// Package twstock fetches the Taiwanese public-company directory from
// TWSE open data. Listed, OTC and emerging boards are published as
// separate feeds, so the full directory is the merge of all sources.
package twstock

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	errsx "github.com/twmops/mops-linebot-go/internal/errors"
	"github.com/twmops/mops-linebot-go/internal/scraper"
)

const (
	twseJSONListed = "https://openapi.twse.com.tw/v1/opendata/t187ap03_L"
	mopsCSVListed  = "https://mopsfin.twse.com.tw/opendata/t187ap03_L.csv"
	mopsCSVOTC     = "https://mopsfin.twse.com.tw/opendata/t187ap03_O.csv"
	mopsCSVRotc    = "https://mopsfin.twse.com.tw/opendata/t187ap03_R.csv"

	quoteURLFormat = "https://mis.twse.com.tw/stock/api/getStockInfo.jsp?ex_ch=tse_%s.tw"
)

// Company is one directory entry.
type Company struct {
	Code      string // 公司代號
	Name      string // 公司名稱
	ShortName string // 公司簡稱
}

// DisplayName returns the short name when available, otherwise the
// full name with the corporate suffix trimmed.
func (c Company) DisplayName() string {
	if c.ShortName != "" {
		return c.ShortName
	}
	return CleanName(c.Name)
}

// CleanName strips the 股份有限公司 / 有限公司 suffix from a company name.
func CleanName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "股份有限公司")
	s = strings.TrimSuffix(s, "有限公司")
	return strings.TrimSpace(s)
}

// Client fetches directory feeds and the realtime quote fallback.
type Client struct {
	client   *scraper.Client
	jsonURL  string
	csvURLs  []string
	quoteURL string // format string taking the stock code
}

// NewClient wraps the shared scraper client.
func NewClient(sc *scraper.Client) *Client {
	return &Client{
		client:   sc,
		jsonURL:  twseJSONListed,
		csvURLs:  []string{mopsCSVListed, mopsCSVOTC, mopsCSVRotc},
		quoteURL: quoteURLFormat,
	}
}

// FetchAll merges every feed into one directory sorted by code.
// Individual feed failures are tolerated; it fails only when every
// source failed, since a partial directory is still useful.
func (c *Client) FetchAll(ctx context.Context) ([]Company, error) {
	var items []Company
	var okSources int
	var lastErr error

	if body, err := c.client.Get(ctx, c.jsonURL); err != nil {
		lastErr = err
	} else if parsed, err := parseCompanyJSON(body); err != nil {
		lastErr = err
	} else {
		items = append(items, parsed...)
		okSources++
	}

	for _, u := range c.csvURLs {
		body, err := c.client.Get(ctx, u)
		if err != nil {
			lastErr = err
			continue
		}
		items = append(items, parseCompanyCSV(body)...)
		okSources++
	}

	if okSources == 0 {
		return nil, errsx.NewRetrievalError(c.jsonURL, 0, fmt.Errorf("all directory sources failed: %w", lastErr))
	}

	byCode := make(map[string]Company, len(items))
	for _, it := range items {
		if it.Code == "" {
			continue
		}
		byCode[it.Code] = it
	}

	out := make([]Company, 0, len(byCode))
	for _, it := range byCode {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// QuoteName resolves a code through the realtime quote API. Covers
// instruments absent from the company feeds, like ETFs.
func (c *Client) QuoteName(ctx context.Context, code string) (string, error) {
	u := fmt.Sprintf(c.quoteURL, code)
	body, err := c.client.Get(ctx, u)
	if err != nil {
		return "", errsx.NewRetrievalError(u, 0, err)
	}

	var payload struct {
		MsgArray []struct {
			N string `json:"n"`
		} `json:"msgArray"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", errsx.NewRetrievalError(u, 0, fmt.Errorf("malformed quote payload: %w", err))
	}
	if len(payload.MsgArray) == 0 || payload.MsgArray[0].N == "" {
		return "", errsx.ErrNotFound
	}
	return payload.MsgArray[0].N, nil
}

func parseCompanyJSON(body []byte) ([]Company, error) {
	var rows []map[string]string
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("malformed directory payload: %w", err)
	}

	var out []Company
	for _, row := range rows {
		code := strings.TrimSpace(row["公司代號"])
		name := strings.TrimSpace(row["公司名稱"])
		if code == "" || name == "" {
			continue
		}
		out = append(out, Company{
			Code:      code,
			Name:      name,
			ShortName: strings.TrimSpace(row["公司簡稱"]),
		})
	}
	return out, nil
}

// parseCompanyCSV reads one open-data CSV. The feeds ship a UTF-8 BOM
// and occasionally ragged rows; both are tolerated. Rows without a
// 4-5 digit code are headers or footers and are skipped.
func parseCompanyCSV(body []byte) []Company {
	body = bytes.TrimPrefix(body, []byte("\ufeff"))

	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil
	}
	codeIdx, nameIdx, shortIdx := -1, -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case "公司代號":
			codeIdx = i
		case "公司名稱":
			nameIdx = i
		case "公司簡稱":
			shortIdx = i
		}
	}
	if codeIdx < 0 || nameIdx < 0 {
		return nil
	}

	var out []Company
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if len(rec) <= codeIdx || len(rec) <= nameIdx {
			continue
		}

		code := strings.ReplaceAll(strings.TrimSpace(rec[codeIdx]), "/", "")
		name := strings.TrimSpace(rec[nameIdx])
		if !isStockCode(code) || name == "" {
			continue
		}

		short := ""
		if shortIdx >= 0 && len(rec) > shortIdx {
			short = strings.TrimSpace(rec[shortIdx])
		}
		out = append(out, Company{Code: code, Name: name, ShortName: short})
	}
	return out
}

// isStockCode reports whether s is a 4-5 digit instrument code.
func isStockCode(s string) bool {
	if len(s) < 4 || len(s) > 5 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
