// Package mops scrapes the Taiwan Stock Exchange "Market Observation
// Post System" (公開資訊觀測站) and related disclosure sources. Its
// centerpiece is the historical announcement engine: the ezsearch
// endpoint silently truncates every query at a fixed record cap, so
// complete results require adaptive bisection of the date range.
package mops

// Announcement is the canonical disclosure record, normalized from the
// loosely shaped upstream rows. Any field may be empty.
type Announcement struct {
	StockCode   string // 代號
	CompanyName string // 簡稱
	Market      string // 市場 (sii/otc/...)
	Industry    string // 產業
	Date        string // 日期, ROC form "114/08/01"
	Time        string // 時間, "14:05:03"
	Subject     string // 主旨
	Description string // 說明
	ItemCode    string // 項目代碼
	ItemName    string // 項目
	Link        string // 連結
}

// identityKey recognizes the same disclosure event when adjacent
// windows both return a boundary day's records.
type identityKey struct {
	date    string
	time    string
	subject string
	link    string
}

func (a *Announcement) key() identityKey {
	return identityKey{date: a.Date, time: a.Time, subject: a.Subject, link: a.Link}
}

// rawRecord mirrors one row of the ezsearch JSON payload. Field names
// vary between deployments, so code fields carry every observed alias.
type rawRecord struct {
	CDate       string `json:"CDATE"`
	CTime       string `json:"CTIME"`
	TypeK       string `json:"TYPEK"`
	CodeName    string `json:"CODE_NAME"`
	CoID        string `json:"CO_ID"`
	StockID     string `json:"STOCK_ID"`
	CompanyID   string `json:"COMPANY_ID"`
	CompanyName string `json:"COMPANY_NAME"`
	AnCode      string `json:"AN_CODE"`
	AnName      string `json:"AN_NAME"`
	Subject     string `json:"SUBJECT"`
	Description string `json:"DESCRIPTION"`
	Hyperlink   string `json:"HYPERLINK"`
}

// canonical translates a raw row into the stable record shape.
func (r *rawRecord) canonical() Announcement {
	code := r.CoID
	if code == "" {
		code = r.StockID
	}
	if code == "" {
		code = r.CompanyID
	}

	return Announcement{
		StockCode:   code,
		CompanyName: r.CompanyName,
		Market:      r.TypeK,
		Industry:    r.CodeName,
		Date:        r.CDate,
		Time:        r.CTime,
		Subject:     r.Subject,
		Description: r.Description,
		ItemCode:    r.AnCode,
		ItemName:    r.AnName,
		Link:        r.Hyperlink,
	}
}

// dedupe removes records whose identity key has already been seen.
// First occurrence wins; output order is otherwise unspecified and is
// fixed later by sortAnnouncements.
func dedupe(records []Announcement) []Announcement {
	seen := make(map[identityKey]struct{}, len(records))
	out := records[:0:0]
	for _, r := range records {
		k := r.key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}
