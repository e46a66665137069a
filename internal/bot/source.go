package bot

import "github.com/line/line-bot-sdk-go/v8/linebot/webhook"

// GetChatID extracts the chat ID from a LINE source.
// Returns user ID for personal chats, group ID for groups, room ID for rooms.
func GetChatID(source webhook.SourceInterface) string {
	switch s := source.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.GroupId
	case webhook.RoomSource:
		return s.RoomId
	}
	return ""
}

// GetUserID extracts the user ID from a LINE source regardless of chat type.
func GetUserID(source webhook.SourceInterface) string {
	switch s := source.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	}
	return ""
}

// OwnerID derives the stable watchlist key for a chat. The type prefix
// keeps a group's shared watchlist separate from its members' personal
// ones even if LINE IDs ever collided across types.
func OwnerID(source webhook.SourceInterface) string {
	switch s := source.(type) {
	case webhook.UserSource:
		return "user:" + s.UserId
	case webhook.GroupSource:
		return "group:" + s.GroupId
	case webhook.RoomSource:
		return "room:" + s.RoomId
	}
	return ""
}

// IsPersonalChat checks if the source is a 1-on-1 chat.
func IsPersonalChat(source webhook.SourceInterface) bool {
	_, ok := source.(webhook.UserSource)
	return ok
}
