package lineutil

import "github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

// Module avatar icons shown next to replies. One icon per module keeps
// the source of a reply recognizable in group chats.
const (
	IconAnnouncement = "https://raw.githubusercontent.com/twitter/twemoji/master/assets/72x72/1f4e2.png"
	IconWatchlist    = "https://raw.githubusercontent.com/twitter/twemoji/master/assets/72x72/1f440.png"
	IconBookbuilding = "https://raw.githubusercontent.com/twitter/twemoji/master/assets/72x72/1f4d6.png"
	IconStockInfo    = "https://raw.githubusercontent.com/twitter/twemoji/master/assets/72x72/1f50e.png"
	IconUsage        = "https://raw.githubusercontent.com/twitter/twemoji/master/assets/72x72/2139.png"
)

// GetSender creates a sender with the given display name and icon.
// All messages in a single reply should share one sender so the avatar
// stays consistent.
func GetSender(name, iconURL string) *messaging_api.Sender {
	return &messaging_api.Sender{
		Name:    name,
		IconUrl: iconURL,
	}
}

// ErrorMessageWithSender creates a generic user-facing error reply.
func ErrorMessageWithSender(sender *messaging_api.Sender) messaging_api.MessageInterface {
	return NewTextMessageWithSender("❌ 系統暫時無法處理您的請求\n\n請稍後再試。", sender)
}

// ErrorMessageWithDetailAndSender creates an error reply with context.
func ErrorMessageWithDetailAndSender(userMessage string, sender *messaging_api.Sender) messaging_api.MessageInterface {
	return NewTextMessageWithSender("❌ "+userMessage, sender)
}
