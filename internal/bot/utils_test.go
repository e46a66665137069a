package bot

import (
	"testing"
)

func TestBuildKeywordRegex_LongestFirst(t *testing.T) {
	regex := BuildKeywordRegex([]string{"公告", "公告查詢"})

	if got := MatchKeyword(regex, "公告查詢 台積電"); got != "公告查詢" {
		t.Errorf("MatchKeyword() = %q, want 公告查詢", got)
	}
	if got := MatchKeyword(regex, "公告 台積電"); got != "公告" {
		t.Errorf("MatchKeyword() = %q, want 公告", got)
	}
}

func TestMatchKeyword_RequiresBoundary(t *testing.T) {
	regex := BuildKeywordRegex([]string{"公告"})

	tests := []struct {
		text string
		want string
	}{
		{"公告 台積電", "公告"},
		{"公告", "公告"},
		{"公告欄", ""},     // no space boundary
		{"看 公告 台積電", ""}, // not at start
		{"", ""},
	}
	for _, tt := range tests {
		if got := MatchKeyword(regex, tt.text); got != tt.want {
			t.Errorf("MatchKeyword(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestBuildKeywordRegex_PanicsOnEmpty(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("BuildKeywordRegex(nil) did not panic")
		}
	}()
	BuildKeywordRegex(nil)
}

func TestExtractSearchTerm(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		keyword string
		want    string
	}{
		{"keyword at start", "公告 台積電", "公告", "台積電"},
		{"keyword at end", "台積電 公告", "公告", "台積電"},
		{"keyword in middle", "查 公告 台積電", "公告", "查  台積電"},
		{"empty keyword", "  台積電  ", "", "台積電"},
		{"only keyword", "公告", "公告", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractSearchTerm(tt.text, tt.keyword)
			if got != tt.want {
				t.Errorf("ExtractSearchTerm(%q, %q) = %q, want %q", tt.text, tt.keyword, got, tt.want)
			}
		})
	}
}

func TestSanitizeText_KeepsCommandCharacters(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"date range survives", "範圍 2330 114/08/01~114/08/31", "範圍 2330 114/08/01~114/08/31"},
		{"punctuation stripped", "今日！！台積電？", "今日台積電"},
		{"fullwidth space", "今日　台積電", "今日 台積電"},
		{"emoji stripped", "今日 🚀 台積電", "今日 台積電"},
		{"whitespace collapsed", "今日   台積電", "今日 台積電"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeText(tt.in); got != tt.want {
				t.Errorf("sanitizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParsePostback(t *testing.T) {
	pb, err := ParsePostback("mops:range$2330$114/08/01$114/08/31")
	if err != nil {
		t.Fatalf("ParsePostback() error = %v", err)
	}
	if pb.Module != "mops" || pb.Action != "range" {
		t.Errorf("Module/Action = %s/%s", pb.Module, pb.Action)
	}
	if len(pb.Params) != 3 || pb.Params[0] != "2330" {
		t.Errorf("Params = %v", pb.Params)
	}
}

func TestParsePostback_Invalid(t *testing.T) {
	for _, data := range []string{"no-separator", "mops:", ""} {
		if _, err := ParsePostback(data); err == nil {
			t.Errorf("ParsePostback(%q) expected error", data)
		}
	}
}

func TestBuildPostback_RoundTrip(t *testing.T) {
	data := BuildPostback("watchlist", "del", "2330")
	pb, err := ParsePostback(data)
	if err != nil {
		t.Fatalf("ParsePostback(%q) error = %v", data, err)
	}
	if pb.Module != "watchlist" || pb.Action != "del" || pb.Params[0] != "2330" {
		t.Errorf("round trip mismatch: %+v", pb)
	}
}
