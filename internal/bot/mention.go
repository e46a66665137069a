package bot

import (
	"slices"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// IsBotMentioned reports whether the bot itself is @-mentioned in the
// message. Group chats stay silent for unrecognized text unless so.
func IsBotMentioned(textMsg webhook.TextMessageContent) bool {
	if textMsg.Mention == nil || len(textMsg.Mention.Mentionees) == 0 {
		return false
	}
	for _, mentionee := range textMsg.Mention.Mentionees {
		if userMentionee, ok := mentionee.(webhook.UserMentionee); ok {
			if userMentionee.IsSelf {
				return true
			}
		}
	}
	return false
}

type mentionInfo struct {
	index  int32
	length int32
}

// removeBotMentions removes all bot mentions from the text. LINE
// reports rune indexes, so the text is edited as runes, back to front
// to preserve index validity.
func removeBotMentions(text string, mention *webhook.Mention) string {
	if mention == nil || len(mention.Mentionees) == 0 {
		return text
	}

	var botMentions []mentionInfo
	for _, mentionee := range mention.Mentionees {
		if userMentionee, ok := mentionee.(webhook.UserMentionee); ok {
			if userMentionee.IsSelf {
				botMentions = append(botMentions, mentionInfo{
					index:  userMentionee.Index,
					length: userMentionee.Length,
				})
			}
		}
	}
	if len(botMentions) == 0 {
		return text
	}

	slices.SortFunc(botMentions, func(a, b mentionInfo) int {
		return int(b.index - a.index)
	})

	runes := []rune(text)
	for _, m := range botMentions {
		startIdx := int(m.index)
		endIdx := int(m.index + m.length)
		if startIdx < 0 {
			startIdx = 0
		}
		if endIdx > len(runes) {
			endIdx = len(runes)
		}
		if startIdx >= endIdx || startIdx >= len(runes) {
			continue
		}
		runes = append(runes[:startIdx], runes[endIdx:]...)
	}

	return strings.Join(strings.Fields(string(runes)), " ")
}
