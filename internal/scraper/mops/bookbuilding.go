package mops

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	errsx "github.com/twmops/mops-linebot-go/internal/errors"
	"github.com/twmops/mops-linebot-go/internal/scraper"
)

const bookbuildingURL = "https://web.twsa.org.tw/edoc2/default.aspx"

// Bookbuilding is one row of the securities association's 詢圈公告
// (book building) query result.
type Bookbuilding struct {
	Seq          string // 序號
	Issuer       string // 發行公司
	Underwriter  string // 主辦承銷商
	IssueType    string // 發行性質
	Shares       string // 承銷股數
	CircledShare string // 詢圈銷售股數
	Period       string // 圈購期間
	Price        string // 價格
}

// BookbuildingClient scrapes the TWSA e-document query page, a classic
// ASP.NET WebForms app that requires echoing VIEWSTATE tokens from a
// warmup GET back in the query POST.
type BookbuildingClient struct {
	client  *scraper.Client
	pageURL string
}

// NewBookbuildingClient wraps the shared scraper client.
func NewBookbuildingClient(client *scraper.Client) *BookbuildingClient {
	return &BookbuildingClient{client: client, pageURL: bookbuildingURL}
}

// FetchBookbuilding returns the current book building announcements for
// a ROC year like "114". An empty result is valid (no open offerings).
func (c *BookbuildingClient) FetchBookbuilding(ctx context.Context, year string) ([]Bookbuilding, error) {
	doc, err := c.client.GetDocument(ctx, c.pageURL)
	if err != nil {
		return nil, errsx.NewRetrievalError(c.pageURL, 0, fmt.Errorf("warmup GET failed: %w", err))
	}

	vs := inputValue(doc, "__VIEWSTATE")
	vsg := inputValue(doc, "__VIEWSTATEGENERATOR")
	ev := inputValue(doc, "__EVENTVALIDATION")
	if vs == "" || vsg == "" || ev == "" {
		// Page layout changed or an error page was served
		return nil, errsx.NewRetrievalError(c.pageURL, 0, fmt.Errorf("viewstate tokens missing from form page"))
	}

	form := url.Values{
		"__EVENTTARGET":               {""},
		"__EVENTARGUMENT":             {""},
		"__VIEWSTATE":                 {vs},
		"__VIEWSTATEGENERATOR":        {vsg},
		"__EVENTVALIDATION":           {ev},
		"ctl00$cphMain$txtYear":       {year},
		"ctl00$cphMain$rblReportType": {"BookBuilding"},
		"ctl00$cphMain$btnQuery":      {"查詢"},
	}

	result, err := c.client.PostFormDocument(ctx, c.pageURL, form, c.pageURL)
	if err != nil {
		return nil, errsx.NewRetrievalError(c.pageURL, 0, fmt.Errorf("query POST failed: %w", err))
	}

	return parseBookbuildingTable(result), nil
}

// parseBookbuildingTable extracts rows from the result grid. The first
// row is a header; rows with fewer than 8 cells are separators.
func parseBookbuildingTable(doc *goquery.Document) []Bookbuilding {
	var rows []Bookbuilding

	doc.Find(`table#ctl00_cphMain_gvResult tr`).Each(func(i int, tr *goquery.Selection) {
		if i == 0 {
			return
		}

		var cells []string
		tr.Find("td").Each(func(_ int, td *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(td.Text()))
		})
		if len(cells) < 8 {
			return
		}

		rows = append(rows, Bookbuilding{
			Seq:          cells[0],
			Issuer:       cells[1],
			Underwriter:  cells[2],
			IssueType:    cells[3],
			Shares:       cells[4],
			CircledShare: cells[5],
			Period:       cells[6],
			Price:        cells[7],
		})
	})

	return rows
}

func inputValue(doc *goquery.Document, name string) string {
	val, _ := doc.Find(fmt.Sprintf(`input[name=%q]`, name)).Attr("value")
	return val
}
