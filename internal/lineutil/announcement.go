package lineutil

import (
	"fmt"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/twmops/mops-linebot-go/internal/scraper/mops"
)

// FormatAnnouncement renders one disclosure record as a text block.
func FormatAnnouncement(a mops.Announcement) string {
	var b strings.Builder
	if a.StockCode != "" || a.CompanyName != "" {
		fmt.Fprintf(&b, "【%s %s】\n", a.StockCode, a.CompanyName)
	}
	fmt.Fprintf(&b, "%s %s\n", a.Date, a.Time)
	b.WriteString(a.Subject)
	if a.Link != "" {
		b.WriteString("\n")
		b.WriteString(a.Link)
	}
	return b.String()
}

// BuildAnnouncementMessages renders a result set as text messages,
// packing announcements into as few messages as possible. The header
// goes on the first message. Records that do not fit within the reply
// limit are dropped and the last message notes the omission.
func BuildAnnouncementMessages(header string, records []mops.Announcement, sender *messaging_api.Sender) []messaging_api.MessageInterface {
	if len(records) == 0 {
		return []messaging_api.MessageInterface{
			NewTextMessageWithSender(header+"\n\n查無符合條件的公告", sender),
		}
	}

	var messages []messaging_api.MessageInterface
	var current strings.Builder
	current.WriteString(header)

	flush := func() {
		if current.Len() > 0 {
			messages = append(messages, NewTextMessageWithSender(current.String(), sender))
			current.Reset()
		}
	}

	shown := 0
	for _, a := range records {
		block := FormatAnnouncement(a)
		if current.Len()+len(block)+2 > TextListSafeBuffer {
			flush()
			if len(messages) == MaxReplyMessages {
				break
			}
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(block)
		shown++
	}
	if len(messages) < MaxReplyMessages {
		flush()
	}

	if shown < len(records) {
		note := fmt.Sprintf("\n\n⋯ 僅顯示前 %d 筆，共 %d 筆", shown, len(records))
		if last, ok := messages[len(messages)-1].(*messaging_api.TextMessage); ok {
			if len([]rune(last.Text))+len([]rune(note)) <= MaxTextMessageLength {
				last.Text += note
			}
		}
	}

	return messages
}

// FormatBookbuilding renders one book building entry as a text block.
func FormatBookbuilding(b mops.Bookbuilding) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "【%s】\n", b.Issuer)
	fmt.Fprintf(&sb, "主辦承銷商：%s\n", b.Underwriter)
	fmt.Fprintf(&sb, "發行性質：%s\n", b.IssueType)
	fmt.Fprintf(&sb, "承銷股數：%s\n", b.Shares)
	fmt.Fprintf(&sb, "圈購期間：%s\n", b.Period)
	fmt.Fprintf(&sb, "價格：%s", b.Price)
	return sb.String()
}
