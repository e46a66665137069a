// Package lineutil provides helpers for building LINE messages and
// actions within the platform's size limits.
package lineutil

import (
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// Action is an alias for the LINE SDK action interface for convenience.
type Action = messaging_api.ActionInterface

// CarouselColumn represents a column in a carousel template.
type CarouselColumn struct {
	ThumbnailImageURL string
	Title             string
	Text              string
	Actions           []Action
}

// QuickReplyItem represents an item in a quick reply.
type QuickReplyItem struct {
	ImageURL string
	Action   Action
}

// TruncateRunes truncates text to at most maxRunes runes. Unlike a byte
// slice this never cuts a multi-byte character in half.
func TruncateRunes(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes])
}

// NewTextMessage creates a text message, truncating to the LINE limit.
func NewTextMessage(text string) *messaging_api.TextMessage {
	if len([]rune(text)) > MaxTextMessageLength {
		text = TruncateRunes(text, MaxTextMessageLength-3) + "..."
	}
	return &messaging_api.TextMessage{Text: text}
}

// NewTextMessageWithSender creates a text message carrying sender info.
func NewTextMessageWithSender(text string, sender *messaging_api.Sender) *messaging_api.TextMessage {
	msg := NewTextMessage(text)
	msg.Sender = sender
	return msg
}

// NewTextMessageWithQuickReply creates a text message with quick reply buttons.
func NewTextMessageWithQuickReply(text string, sender *messaging_api.Sender, items ...QuickReplyItem) *messaging_api.TextMessage {
	msg := NewTextMessageWithSender(text, sender)
	if len(items) > 0 {
		msg.QuickReply = NewQuickReply(items)
	}
	return msg
}

// NewCarouselTemplate creates a carousel template message.
// LINE API limits: max 10 columns, each with max 4 actions.
func NewCarouselTemplate(altText string, columns []CarouselColumn) messaging_api.MessageInterface {
	if len(columns) > MaxCarouselColumnCount {
		columns = columns[:MaxCarouselColumnCount]
	}
	if len([]rune(altText)) > MaxAltTextLength {
		altText = TruncateRunes(altText, MaxAltTextLength-3) + "..."
	}

	templateColumns := make([]messaging_api.CarouselColumn, len(columns))
	for i, col := range columns {
		actions := col.Actions
		if len(actions) > MaxTemplateActionCount {
			actions = actions[:MaxTemplateActionCount]
		}
		text := col.Text
		if len([]rune(text)) > MaxCarouselTemplateText {
			text = TruncateRunes(text, MaxCarouselTemplateText-3) + "..."
		}
		column := messaging_api.CarouselColumn{
			Text:    text,
			Actions: actions,
		}
		if col.ThumbnailImageURL != "" {
			column.ThumbnailImageUrl = col.ThumbnailImageURL
		}
		if col.Title != "" {
			column.Title = TruncateRunes(col.Title, MaxTemplateTitleLength)
		}
		templateColumns[i] = column
	}

	return &messaging_api.TemplateMessage{
		AltText: altText,
		Template: &messaging_api.CarouselTemplate{
			Columns: templateColumns,
		},
	}
}

// NewConfirmTemplate creates a confirmation template with two buttons.
func NewConfirmTemplate(altText, text string, yesAction, noAction Action) messaging_api.MessageInterface {
	return &messaging_api.TemplateMessage{
		AltText: altText,
		Template: &messaging_api.ConfirmTemplate{
			Text:    text,
			Actions: []Action{yesAction, noAction},
		},
	}
}

// NewQuickReply creates a quick reply component.
// LINE API limits: max 13 items.
func NewQuickReply(items []QuickReplyItem) *messaging_api.QuickReply {
	if len(items) > MaxQuickReplyItemCount {
		items = items[:MaxQuickReplyItemCount]
	}
	quickReplyItems := make([]messaging_api.QuickReplyItem, len(items))
	for i, item := range items {
		qrItem := messaging_api.QuickReplyItem{Action: item.Action}
		if item.ImageURL != "" {
			qrItem.ImageUrl = item.ImageURL
		}
		quickReplyItems[i] = qrItem
	}
	return &messaging_api.QuickReply{Items: quickReplyItems}
}

// NewMessageAction creates an action that sends a message when clicked.
func NewMessageAction(label, text string) Action {
	return &messaging_api.MessageAction{
		Label: label,
		Text:  text,
	}
}

// NewPostbackAction creates an action that sends postback data when clicked.
func NewPostbackAction(label, data string) Action {
	return &messaging_api.PostbackAction{
		Label: label,
		Data:  data,
	}
}

// NewPostbackActionWithDisplayText creates a postback action that also
// shows displayText in the chat when clicked.
func NewPostbackActionWithDisplayText(label, displayText, data string) Action {
	return &messaging_api.PostbackAction{
		Label:       label,
		DisplayText: displayText,
		Data:        data,
	}
}

// NewURIAction creates an action that opens a URL when clicked.
func NewURIAction(label, uri string) Action {
	return &messaging_api.UriAction{
		Label: label,
		Uri:   uri,
	}
}

// NewClipboardAction creates an action that copies text when clicked.
func NewClipboardAction(label, clipboardText string) Action {
	return &messaging_api.ClipboardAction{
		Label:         label,
		ClipboardText: clipboardText,
	}
}

// SetSender sets the Sender field on a message and returns it for chaining.
// Supports TextMessage, FlexMessage, TemplateMessage and ImageMessage.
func SetSender(msg messaging_api.MessageInterface, sender *messaging_api.Sender) messaging_api.MessageInterface {
	if sender == nil {
		return msg
	}
	switch m := msg.(type) {
	case *messaging_api.TextMessage:
		m.Sender = sender
	case *messaging_api.FlexMessage:
		m.Sender = sender
	case *messaging_api.TemplateMessage:
		m.Sender = sender
	case *messaging_api.ImageMessage:
		m.Sender = sender
	}
	return msg
}

// AddQuickReplyToMessages attaches the quick reply to the last message
// in the slice. LINE shows quick replies only on the final message.
func AddQuickReplyToMessages(messages []messaging_api.MessageInterface, items ...QuickReplyItem) {
	if len(messages) == 0 || len(items) == 0 {
		return
	}
	switch m := messages[len(messages)-1].(type) {
	case *messaging_api.TextMessage:
		m.QuickReply = NewQuickReply(items)
	case *messaging_api.FlexMessage:
		m.QuickReply = NewQuickReply(items)
	case *messaging_api.TemplateMessage:
		m.QuickReply = NewQuickReply(items)
	}
}
